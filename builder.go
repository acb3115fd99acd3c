package tokenauth

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/rights"
	"github.com/MrEthical07/tokenauth/signer"
	"github.com/MrEthical07/tokenauth/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  TokenStore

	rightNames []string
	roles      map[string][]string

	principals PrincipalStore
	notifier   Notifier
	auditSink  AuditSink
	logger     *zap.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores tokens in Redis through [token.RedisStore], using
// Config.Store.RedisPrefix for keys. WithTokenStore takes precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore sets a custom token store, such as pgstore.Store.
func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.store = store
	return b
}

// WithRights declares the right names the role table may reference.
func (b *Builder) WithRights(names []string) *Builder {
	b.rightNames = names
	return b
}

// WithRoles sets the role to rights mapping. Without WithRights and WithRoles
// the engine uses [rights.Default].
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithPrincipalStore sets the principal lookup. It is required.
func (b *Builder) WithPrincipalStore(ps PrincipalStore) *Builder {
	b.principals = ps
	return b
}

// WithNotifier sets the link delivery backend. Without one, links are only
// logged at debug level with the token value redacted.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit sink used when Config.Audit.Enabled is true.
// The default sink logs events through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for signing, verification and expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the gate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.principals == nil {
		return nil, errors.New("principal store required")
	}

	// -------- TOKEN STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("token store or redis client required")
		}
		store = token.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	}

	// -------- ROLE TABLE --------
	var table *rights.Table
	if len(b.rightNames) == 0 && len(b.roles) == 0 {
		table = rights.Default()
	} else {
		if len(b.roles) == 0 {
			return nil, errors.New("roles must be provided with rights")
		}
		t, err := rights.New(b.rightNames, b.roles)
		if err != nil {
			return nil, err
		}
		table = t
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SIGNER --------
	s, err := signer.New(cfg.Signer.signerConfig(now))
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		signer:     s,
		store:      store,
		rights:     table,
		principals: b.principals,
		logger:     logger.Named("tokenauth"),
		now:        now,
	}

	engine.notifier = b.notifier
	if engine.notifier == nil {
		engine.notifier = logNotifier{logger: engine.logger}
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flowDeps = flows.Deps{
		Signer: s,
		Store:  store,
	}

	b.built = true

	return engine, nil
}
