package goSession

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	log    logrus.FieldLogger
	driver storage.Driver

	provider  TokenProvider
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithDriver injects a storage driver instead of opening Config.Storage.
// The Engine does not close an injected driver.
func (b *Builder) WithDriver(driver storage.Driver) *Builder {
	b.driver = driver
	return b
}

// WithProvider injects a token provider instead of building one from
// Config.OAuth.
func (b *Builder) WithProvider(p TokenProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets the sink receiving audit events. Audit.Enabled must be
// set for events to be dispatched; without a sink they go to the engine
// logger through a LogSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source for session and token expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the provider latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build is BuildContext with a background context.
func (b *Builder) Build() (*Engine, error) {
	return b.BuildContext(context.Background())
}

// BuildContext validates the configuration and wires the Engine. ctx bounds
// the storage connection check and OIDC discovery.
//
// Configuration problems return ErrConfiguration and are logged at error
// level. A missing refresh API key is logged but not fatal: the batch trigger
// route refuses requests until one is configured.
func (b *Builder) BuildContext(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	log := b.log
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	log = log.WithField("component", "gosession")
	now := b.now
	if now == nil {
		now = time.Now
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return nil, err
	}
	if b.provider == nil {
		if err := cfg.ValidateOAuth(); err != nil {
			log.WithError(err).Error("Invalid configuration")
			return nil, err
		}
	}
	if cfg.Refresh.APIKey == "" {
		log.Error("Refresh API key is not configured; the refresh trigger is disabled")
	}

	codec, err := cookie.NewCodec(cfg.Session.Secrets)
	if err != nil {
		return nil, configErr("session secrets: %v", err)
	}

	var closers []func() error
	driver := b.driver
	if driver == nil {
		driver, err = OpenDriver(ctx, cfg.Storage, log)
		if err != nil {
			log.WithError(err).Error("Failed to open session storage")
			return nil, err
		}
		if c, ok := driver.(storage.Closer); ok {
			closers = append(closers, c.Close)
		}
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	tp := b.provider
	if tp == nil {
		// The discovery context also backs later key set fetches, so the
		// timeout lives on the HTTP client rather than on ctx.
		p, err := provider.New(ctx, provider.Config{
			Issuer:        cfg.OAuth.Issuer,
			ClientID:      cfg.OAuth.ClientID,
			ClientSecret:  cfg.OAuth.ClientSecret,
			Scopes:        cfg.OAuth.Scopes,
			Audience:      cfg.OAuth.Audience,
			RedirectURL:   cfg.OAuth.CallbackURL,
			Discovery:     cfg.OAuth.Discovery,
			AuthorizePath: cfg.OAuth.AuthorizePath,
			TokenPath:     cfg.OAuth.TokenPath,
			AuthStyle:     cfg.OAuth.AuthStyle,
			HTTPClient:    &http.Client{Timeout: cfg.OAuth.ProviderTimeout},
		})
		if err != nil {
			closeAll()
			log.WithError(err).Error("Failed to initialize OAuth provider")
			if errors.Is(err, ErrProvider) {
				return nil, err
			}
			return nil, configErr("oauth: %v", err)
		}
		tp = p
	}

	store := session.NewStore(
		driver,
		codec,
		cfg.Session.MaxAge,
		session.WithKeyPrefix(cfg.Session.KeyPrefix),
		session.WithClock(now),
	)

	engine := &Engine{
		config:   cfg,
		sessions: store,
		driver:   driver,
		provider: tp,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink, log),
		metrics:  NewMetrics(cfg.Metrics),
		log:      log,
		now:      now,
		closers:  closers,
	}
	engine.flows = engine.buildFlowDeps()

	log.WithFields(logrus.Fields{
		"storage":   backendKind(cfg.Storage, b.driver != nil),
		"discovery": cfg.OAuth.Discovery,
	}).Debug("Engine ready")

	return engine, nil
}

func backendKind(b storage.Backend, injected bool) string {
	if injected {
		return "injected"
	}
	if b == nil {
		return storage.Memory{}.Kind()
	}
	return b.Kind()
}
