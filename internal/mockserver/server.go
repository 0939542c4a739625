package mockserver

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrUserExists      = errors.New("user already exists")
	ErrUnknownOobCode  = errors.New("unknown oob code")
	ErrBindingMismatch = errors.New("binding code mismatch")
	ErrNoTOTP          = errors.New("user has no totp enrollment")
)

// Config controls client credentials, token lifetimes and signing.
type Config struct {
	// Issuer is the iss claim of ID tokens; the request host is used when empty.
	Issuer       string
	ClientID     string
	ClientSecret string
	SigningKey   []byte
	TokenTTL     time.Duration
	OobTTL       time.Duration
	PollInterval int
	// EnforceInterval answers slow_down to polls closer together than PollInterval.
	EnforceInterval bool
	// AutoApproveAfter approves a pending push after that many polls; 0 disables it.
	AutoApproveAfter int
	Now              func() time.Time
	Logger           *slog.Logger
	// OnDelivery is called for every out-of-band challenge that is sent.
	OnDelivery func(Delivery)
}

// Delivery is what would be sent to the user's device for an out-of-band challenge.
type Delivery struct {
	OobCode       string
	Username      string
	Channel       string
	BindingMethod string
	// BindingCode is shown on the requesting device for transfer binding.
	BindingCode string
	// Code is the value the user must type back for prompt binding.
	Code string
}

// Server is the mock authorization server.
type Server struct {
	cfg    Config
	router chi.Router

	mu        sync.Mutex
	users     map[string]*User
	oob       map[string]*oobTxn
	mfaTokens map[string]string
}

// New creates a server with defaults for unset fields.
func New(cfg Config) *Server {
	if cfg.ClientID == "" {
		cfg.ClientID = "mock-client"
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = []byte("directauth-mock-signing-key")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.OobTTL <= 0 {
		cfg.OobTTL = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		users:     make(map[string]*User),
		oob:       make(map[string]*oobTxn),
		mfaTokens: make(map[string]string),
	}
	s.router = s.routes()
	return s
}

// ClientID returns the accepted client id.
func (s *Server) ClientID() string {
	return s.cfg.ClientID
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Route("/oauth2", func(r chi.Router) {
		r.Post("/v1/token", s.handleToken)
		r.Post("/v1/challenge", s.handleChallenge)
		r.Post("/v1/primary-authenticate", s.handlePrimaryAuthenticate)

		r.Route("/{authServerID}/v1", func(r chi.Router) {
			r.Post("/token", s.handleToken)
			r.Post("/challenge", s.handleChallenge)
			r.Post("/primary-authenticate", s.handlePrimaryAuthenticate)
		})
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.cfg.Now()
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Debug("mock request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", s.cfg.Now().Sub(start),
		)
	})
}
