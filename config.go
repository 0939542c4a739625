package directauth

import (
	"net/url"
	"strings"
	"time"
)

// Config is the complete flow configuration. Use [New] for the common case and
// [Builder.WithConfig] to supply a full Config, for example one loaded from a file.
type Config struct {
	Client  ClientConfig
	HTTP    HTTPConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
CLIENT CONFIG
====================================
*/

// ClientConfig identifies the OAuth2 client and the authorization server it talks to.
type ClientConfig struct {
	Issuer                string
	ClientID              string
	ClientSecret          string
	Scopes                []string
	AuthorizationServerID string
	GrantTypes            []GrantType
	AcrValues             []string
	AdditionalParameters  map[string]string
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig configures the default HTTPExecutor. It is ignored when an Executor is injected.
type HTTPConfig struct {
	Timeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// ResetFlushTimeout bounds how long Reset waits for queued events to reach the
	// sink. Zero disables the wait.
	ResetFlushTimeout time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Client: ClientConfig{
			GrantTypes: append([]GrantType(nil), DefaultGrantTypes...),
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,

			ResetFlushTimeout: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Client.Scopes = append([]string(nil), cfg.Client.Scopes...)
	out.Client.GrantTypes = append([]GrantType(nil), cfg.Client.GrantTypes...)
	out.Client.AcrValues = append([]string(nil), cfg.Client.AcrValues...)
	if cfg.Client.AdditionalParameters != nil {
		out.Client.AdditionalParameters = make(map[string]string, len(cfg.Client.AdditionalParameters))
		for k, v := range cfg.Client.AdditionalParameters {
			out.Client.AdditionalParameters[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// ConfigError is a validation failure. Its message is exactly the violated rule and it
// unwraps to ErrInvalidConfiguration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

func configError(field, msg string) error {
	return &ConfigError{Field: field, Message: msg}
}

// Validate checks the invariants Build relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Client.Issuer)
	if err != nil || u.Scheme != "https" || strings.TrimSpace(u.Hostname()) == "" {
		return configError("Client.Issuer", "issuer must be an https URL with a non-blank host")
	}
	if strings.TrimSpace(c.Client.ClientID) == "" {
		return configError("Client.ClientID", "client id must not be blank")
	}
	if len(c.Client.Scopes) == 0 {
		return configError("Client.Scopes", "scopes must not be empty")
	}
	for _, s := range c.Client.Scopes {
		if strings.TrimSpace(s) == "" {
			return configError("Client.Scopes", "scopes must not contain blank entries")
		}
	}
	if len(c.Client.GrantTypes) == 0 {
		return configError("Client.GrantTypes", "grant types must not be empty")
	}

	if c.HTTP.Timeout < 0 {
		return configError("HTTP.Timeout", "HTTP Timeout must be >= 0")
	}
	if c.Audit.BufferSize < 0 {
		return configError("Audit.BufferSize", "Audit BufferSize must be >= 0")
	}
	if c.Audit.ResetFlushTimeout < 0 {
		return configError("Audit.ResetFlushTimeout", "Audit ResetFlushTimeout must be >= 0")
	}
	return nil
}
