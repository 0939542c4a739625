package directauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Builder assembles a [Flow]. A Builder can be built once.
//
// Builder methods are not safe for concurrent use; configure it on one goroutine, then call Build.
type Builder struct {
	config Config

	executor   Executor
	httpClient *http.Client
	clock      Clock
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New starts a builder for a flow against issuer as clientID requesting scopes.
func New(issuer, clientID string, scopes ...string) *Builder {
	cfg := defaultConfig()
	cfg.Client.Issuer = issuer
	cfg.Client.ClientID = clientID
	cfg.Client.Scopes = append([]string(nil), scopes...)
	return &Builder{
		config: cfg,
	}
}

// WithConfig replaces the whole configuration, including the values given to New.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithClientSecret sets a confidential client's secret. A blank secret is never sent.
func (b *Builder) WithClientSecret(secret string) *Builder {
	b.config.Client.ClientSecret = secret
	return b
}

// WithAuthorizationServerID targets a custom authorization server.
func (b *Builder) WithAuthorizationServerID(id string) *Builder {
	b.config.Client.AuthorizationServerID = id
	return b
}

// WithSupportedGrantTypes overrides the grant_types_supported advertisement.
func (b *Builder) WithSupportedGrantTypes(grants ...GrantType) *Builder {
	b.config.Client.GrantTypes = append([]GrantType(nil), grants...)
	return b
}

// WithAcrValues sets acr_values on every request.
func (b *Builder) WithAcrValues(values ...string) *Builder {
	b.config.Client.AcrValues = append([]string(nil), values...)
	return b
}

// WithAdditionalParameters adds query parameters to every request.
func (b *Builder) WithAdditionalParameters(params map[string]string) *Builder {
	if b.config.Client.AdditionalParameters == nil {
		b.config.Client.AdditionalParameters = make(map[string]string, len(params))
	}
	for k, v := range params {
		b.config.Client.AdditionalParameters[k] = v
	}
	return b
}

// WithExecutor injects the HTTP collaborator. It takes precedence over WithHTTPClient.
func (b *Builder) WithExecutor(e Executor) *Builder {
	b.executor = e
	return b
}

// WithHTTPClient sets the client used by the default HTTPExecutor.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithHTTPTimeout sets the timeout of the default HTTP client.
func (b *Builder) WithHTTPTimeout(d time.Duration) *Builder {
	b.config.HTTP.Timeout = d
	return b
}

// WithClock injects the time source.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger. Nil falls back to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the step latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Flow in the Idle state.
//
// Validation failures unwrap to ErrInvalidConfiguration. A second call returns ErrBuilderUsed.
func (b *Builder) Build() (*Flow, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b.built = true

	executor := b.executor
	if executor == nil {
		client := b.httpClient
		if client == nil {
			client = &http.Client{Timeout: cfg.HTTP.Timeout}
		}
		executor = NewHTTPExecutor(client)
	}
	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	sc := &sessionContext{
		issuer:                cfg.Client.Issuer,
		clientID:              cfg.Client.ClientID,
		clientSecret:          cfg.Client.ClientSecret,
		scopes:                cfg.Client.Scopes,
		authorizationServerID: cfg.Client.AuthorizationServerID,
		grantTypes:            cfg.Client.GrantTypes,
		acrValues:             cfg.Client.AcrValues,
		additionalParameters:  cfg.Client.AdditionalParameters,
		endpoints:             newEndpoints(cfg.Client.Issuer, cfg.Client.AuthorizationServerID),
		executor:              executor,
		clock:                 clock,
		logger:                logger.With(slog.String("component", "directauth"), slog.String("session_id", id)),
		state:                 newStateCell(&Idle{}),
	}

	return &Flow{
		id:      id,
		sc:      sc,
		config:  cfg,
		sem:     semaphore.NewWeighted(1),
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
	}, nil
}
