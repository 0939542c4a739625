package mockserver

import (
	"fmt"

	"github.com/MrEthical07/directauth"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// User is an in-memory account.
type User struct {
	Username     string
	passwordHash []byte
	totpSecret   string
	// RequireMFA makes password logins answer mfa_required.
	RequireMFA  bool
	PushBinding directauth.BindingMethod
}

// UserOption configures a user at creation.
type UserOption func(*User)

// WithMFA requires a second factor after the password.
func WithMFA() UserOption {
	return func(u *User) { u.RequireMFA = true }
}

// WithTOTPSecret enrolls a base32 TOTP secret.
func WithTOTPSecret(secret string) UserOption {
	return func(u *User) { u.totpSecret = secret }
}

// WithPushBinding sets the binding method of push challenges (none or transfer).
func WithPushBinding(b directauth.BindingMethod) UserOption {
	return func(u *User) { u.PushBinding = b }
}

// AddUser registers a user with a bcrypt hash of password.
func (s *Server) AddUser(username, password string, opts ...UserOption) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     username,
		passwordHash: hash,
		PushBinding:  directauth.BindingNone,
	}
	for _, opt := range opts {
		opt(u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = u
	return nil
}

// EnrollTOTP generates and stores a new TOTP secret for username.
func (s *Server) EnrollTOTP(username string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "directauth-mock",
		AccountName: username,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", ErrUnknownUser
	}
	u.totpSecret = key.Secret()
	return u.totpSecret, nil
}

// CurrentTOTP returns the code valid now for username.
func (s *Server) CurrentTOTP(username string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return "", ErrUnknownUser
	}
	if u.totpSecret == "" {
		return "", ErrNoTOTP
	}
	return totp.GenerateCodeCustom(u.totpSecret, s.cfg.Now().UTC(), totpOpts)
}

func (s *Server) lookupUser(username string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return u, ok
}

func (u *User) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) == nil
}

func (s *Server) checkTOTP(u *User, code string) bool {
	if u.totpSecret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, u.totpSecret, s.cfg.Now().UTC(), totpOpts)
	return err == nil && ok
}
