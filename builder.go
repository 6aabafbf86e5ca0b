package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; no
// I/O happens until the first Engine method call.
type Builder struct {
	config    Config
	plugin    store.Plugin
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is cloned;
// later mutations by the caller are invisible to Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithPlugin sets the storage backend. Required.
func (b *Builder) WithPlugin(p store.Plugin) *Builder {
	b.plugin = p
	return b
}

// WithAuditSink sets the destination for audit events. Only consulted
// when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles metric recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Engine]. A
// Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.plugin == nil {
		return nil, errors.New("storage plugin required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		ActiveKeyID:   cfg.Keys.ActiveKeyID,
		SigningKeys:   cloneKeyMap(cfg.Keys.SigningKeys),
		VerifyKeys:    cloneKeyMap(cfg.Keys.VerifyKeys),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
		tokens: tm,
		sessions: session.NewStore(
			b.plugin,
			cfg.Session.GraceWindow,
			cfg.Session.RotateRetryLimit,
			cloneBytes(cfg.Keys.RotationKey),
		),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
