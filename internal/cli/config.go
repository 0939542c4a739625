package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration of the CLI. ${VAR} references are expanded
// from the environment before decoding.
type FileConfig struct {
	Issuer                string            `yaml:"issuer" validate:"required,url"`
	ClientID              string            `yaml:"client_id" validate:"required"`
	ClientSecret          string            `yaml:"client_secret,omitempty"`
	Scopes                []string          `yaml:"scopes" validate:"required,min=1,dive,required"`
	AuthorizationServerID string            `yaml:"authorization_server_id,omitempty"`
	AcrValues             []string          `yaml:"acr_values,omitempty"`
	AdditionalParameters  map[string]string `yaml:"additional_parameters,omitempty"`
	Timeout               time.Duration     `yaml:"timeout,omitempty" validate:"gte=0"`
	CAFile                string            `yaml:"ca_file,omitempty" validate:"omitempty,file"`
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	return validate
}

func decodeConfigFile(path string) (*FileConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := new(FileConfig)
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(content))), cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads, expands and validates a config file.
func LoadConfigFile(path string) (*FileConfig, error) {
	cfg, err := decodeConfigFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c *FileConfig) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// ResolveConfig merges the config file named by config_file with flag and
// DIRECTAUTH_* environment overrides. A missing file is not an error.
func ResolveConfig(v *viper.Viper) (*FileConfig, error) {
	cfg := new(FileConfig)
	if path := v.GetString("config_file"); path != "" {
		loaded, err := decodeConfigFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using flags and environment", "path", path)
		default:
			return nil, err
		}
	}

	if s := v.GetString("issuer"); s != "" {
		cfg.Issuer = s
	}
	if s := v.GetString("client_id"); s != "" {
		cfg.ClientID = s
	}
	if s := v.GetString("client_secret"); s != "" {
		cfg.ClientSecret = s
	}
	if s := v.GetStringSlice("scopes"); len(s) > 0 {
		cfg.Scopes = s
	}
	if s := v.GetString("auth_server_id"); s != "" {
		cfg.AuthorizationServerID = s
	}
	if s := v.GetString("ca_file"); s != "" {
		cfg.CAFile = s
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Builder returns a flow builder for the configuration. With a CA file the
// builder's HTTP client also trusts that certificate.
func (c *FileConfig) Builder(logger *slog.Logger) (*directauth.Builder, error) {
	b := directauth.New(c.Issuer, c.ClientID, c.Scopes...).WithLogger(logger)
	if c.ClientSecret != "" {
		b.WithClientSecret(c.ClientSecret)
	}
	if c.AuthorizationServerID != "" {
		b.WithAuthorizationServerID(c.AuthorizationServerID)
	}
	if len(c.AcrValues) > 0 {
		b.WithAcrValues(c.AcrValues...)
	}
	if len(c.AdditionalParameters) > 0 {
		b.WithAdditionalParameters(c.AdditionalParameters)
	}
	if c.Timeout > 0 {
		b.WithHTTPTimeout(c.Timeout)
	}
	if c.CAFile != "" {
		client, err := httpClientTrusting(c.CAFile, c.Timeout)
		if err != nil {
			return nil, err
		}
		b.WithHTTPClient(client)
	}
	return b, nil
}

// Redacted returns a copy safe to print.
func (c FileConfig) Redacted() FileConfig {
	if c.ClientSecret != "" {
		c.ClientSecret = "REDACTED"
	}
	return c
}
