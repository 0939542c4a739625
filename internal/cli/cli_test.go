package cli

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/internal/mockserver"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFileExpandsEnv(t *testing.T) {
	t.Setenv("DA_TEST_SECRET", "from-env")
	path := writeConfig(t, `
issuer: https://example.okta.com
client_id: cli-client
client_secret: ${DA_TEST_SECRET}
scopes: [openid, profile]
authorization_server_id: default
timeout: 15s
additional_parameters:
  foo: bar
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ClientSecret)
	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "bar", cfg.AdditionalParameters["foo"])
	assert.Equal(t, "REDACTED", cfg.Redacted().ClientSecret)
	assert.Equal(t, "from-env", cfg.ClientSecret)
}

func TestLoadConfigFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"missing issuer", "client_id: c\nscopes: [openid]\n", "issuer"},
		{"bad issuer", "issuer: not a url\nclient_id: c\nscopes: [openid]\n", "issuer"},
		{"missing client", "issuer: https://x.example.com\nscopes: [openid]\n", "client_id"},
		{"no scopes", "issuer: https://x.example.com\nclient_id: c\n", "scopes"},
		{"blank scope", "issuer: https://x.example.com\nclient_id: c\nscopes: ['']\n", "scopes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestResolveConfigOverrides(t *testing.T) {
	path := writeConfig(t, "issuer: https://file.example.com\nclient_id: from-file\nscopes: [openid]\n")
	v := viper.New()
	v.Set("config_file", path)
	v.Set("client_id", "from-flag")

	cfg, err := ResolveConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.Issuer)
	assert.Equal(t, "from-flag", cfg.ClientID)
}

func TestResolveConfigWithoutFile(t *testing.T) {
	v := viper.New()
	v.Set("config_file", filepath.Join(t.TempDir(), "missing.yaml"))
	v.Set("issuer", "https://example.okta.com")
	v.Set("client_id", "c")
	v.Set("scopes", []string{"openid"})

	cfg, err := ResolveConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "c", cfg.ClientID)

	v2 := viper.New()
	v2.Set("config_file", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = ResolveConfig(v2)
	assert.Error(t, err)
}

func TestConfigCommandRedactsSecret(t *testing.T) {
	t.Setenv("PRETTY_LOGS", "false")
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"config",
		"--config-file", filepath.Join(t.TempDir(), "missing.yaml"),
		"--issuer", "https://example.okta.com",
		"--client-id", "cli",
		"--client-secret", "do-not-print",
		"--scopes", "openid,email",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "client_id: cli")
	assert.Contains(t, out.String(), "REDACTED")
	assert.NotContains(t, out.String(), "do-not-print")
}

type scriptedPrompter struct {
	secrets []string
	lines   []func() string
	labels  []string
}

func (p *scriptedPrompter) Secret(label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.secrets) == 0 {
		return "", errors.New("no scripted secret")
	}
	s := p.secrets[0]
	p.secrets = p.secrets[1:]
	return s, nil
}

func (p *scriptedPrompter) Line(label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.lines) == 0 {
		return "", errors.New("no scripted line")
	}
	s := p.lines[0]
	p.lines = p.lines[1:]
	return s(), nil
}

func writeCA(t *testing.T, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func newMockFlow(t *testing.T, srv *mockserver.Server) *directauth.Flow {
	t.Helper()
	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := &FileConfig{
		Issuer:   ts.URL,
		ClientID: srv.ClientID(),
		Scopes:   []string{"openid"},
		Timeout:  5 * time.Second,
		CAFile:   writeCA(t, ts.Certificate().Raw),
	}
	b, err := cfg.Builder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func TestSelfSignedMockServerIsTrustedThroughCAFile(t *testing.T) {
	srv := mockserver.New(mockserver.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, srv.AddUser("dave", "pw"))

	cert, caPEM, err := selfSignedCertificate(certificateHosts("127.0.0.1:0"), time.Now())
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(srv.Handler())
	ts.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	ts.StartTLS()
	t.Cleanup(ts.Close)

	caFile := filepath.Join(t.TempDir(), "mock-ca.pem")
	require.NoError(t, os.WriteFile(caFile, caPEM, 0o600))

	cfg := &FileConfig{Issuer: ts.URL, ClientID: srv.ClientID(), Scopes: []string{"openid"}, CAFile: caFile}
	b, err := cfg.Builder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(f.Close)

	state := f.Start(context.Background(), "dave", directauth.Password{Password: "pw"})
	_, ok := state.(*directauth.Authenticated)
	require.Truef(t, ok, "expected *Authenticated, got %T %v", state, state)
}

func TestUntrustedMockServerFails(t *testing.T) {
	srv := mockserver.New(mockserver.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, srv.AddUser("erin", "pw"))
	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := &FileConfig{Issuer: ts.URL, ClientID: srv.ClientID(), Scopes: []string{"openid"}}
	b, err := cfg.Builder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(f.Close)

	state := f.Start(context.Background(), "erin", directauth.Password{Password: "pw"})
	ie, ok := state.(*directauth.InternalError)
	require.Truef(t, ok, "expected *InternalError, got %T", state)
	assert.Equal(t, directauth.ErrorCodeUnknown, ie.Code)
}

func TestBuilderRejectsCAFileWithoutCertificates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	cfg := &FileConfig{Issuer: "https://example.okta.com", ClientID: "c", Scopes: []string{"openid"}, CAFile: path}
	_, err := cfg.Builder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "no PEM certificates")
}

func TestCertificateHosts(t *testing.T) {
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1"}, certificateHosts("127.0.0.1:9090"))
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1", "auth.test"}, certificateHosts("auth.test:443"))
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1"}, certificateHosts(":9090"))
}

func TestLoginPasswordThenOtp(t *testing.T) {
	srv := mockserver.New(mockserver.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, srv.AddUser("alice", "pw", mockserver.WithMFA()))
	_, err := srv.EnrollTOTP("alice")
	require.NoError(t, err)

	prompter := &scriptedPrompter{
		secrets: []string{"pw"},
		lines: []func() string{func() string {
			code, err := srv.CurrentTOTP("alice")
			require.NoError(t, err)
			return code
		}},
	}
	var out bytes.Buffer
	l := &loginRunner{flow: newMockFlow(t, srv), prompter: prompter, out: &out}

	auth, err := l.run(context.Background(), "alice", "password", "otp")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", auth.Token.TokenType)
	assert.Equal(t, []string{"Password: ", "One-time code: "}, prompter.labels)
}

func TestLoginPushPolls(t *testing.T) {
	srv := mockserver.New(mockserver.Config{
		AutoApproveAfter: 2,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, srv.AddUser("bob", "pw", mockserver.WithPushBinding(directauth.BindingTransfer)))

	var out bytes.Buffer
	l := &loginRunner{
		flow:     newMockFlow(t, srv),
		prompter: &scriptedPrompter{},
		out:      &out,
		sleep:    func(context.Context, time.Duration) error { return nil },
	}

	auth, err := l.run(context.Background(), "bob", "push", "otp")
	require.NoError(t, err)
	assert.NotEmpty(t, auth.Token.AccessToken)
	assert.Contains(t, out.String(), "Select ")
}

func TestLoginSurfacesErrorState(t *testing.T) {
	srv := mockserver.New(mockserver.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, srv.AddUser("carol", "pw"))

	l := &loginRunner{
		flow:     newMockFlow(t, srv),
		prompter: &scriptedPrompter{secrets: []string{"wrong"}},
		out:      io.Discard,
	}
	_, err := l.run(context.Background(), "carol", "password", "otp")

	var oe *directauth.OAuth2Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, directauth.OAuth2ErrorInvalidGrant, oe.Code)
}

func TestLoginRejectsUnknownFactor(t *testing.T) {
	l := &loginRunner{prompter: &scriptedPrompter{}, out: io.Discard}
	_, err := l.run(context.Background(), "x", "carrier-pigeon", "otp")
	assert.ErrorContains(t, err, "unknown factor")
}

func TestRenderTokenHidesSecrets(t *testing.T) {
	var out bytes.Buffer
	tok := &directauth.Token{
		TokenType:    "Bearer",
		ExpiresIn:    60,
		AccessToken:  "abcdefghijklmnopqrstuvwxyz",
		RefreshToken: "refresh-value",
		Scope:        "openid",
	}
	require.NoError(t, renderToken(&out, tok, time.Unix(0, 0).UTC()))

	s := out.String()
	assert.Contains(t, s, "Bearer")
	assert.Contains(t, s, "1970-01-01T00:01:00Z")
	assert.NotContains(t, s, "abcdefghijklmnopqrstuvwxyz")
	assert.NotContains(t, s, "refresh-value")
}
