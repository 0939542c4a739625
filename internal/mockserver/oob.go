package mockserver

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/internal/wire"
	"github.com/google/uuid"
)

type oobTxn struct {
	code          string
	username      string
	channel       directauth.OobChannel
	bindingMethod directauth.BindingMethod
	bindingCode   string
	promptCode    string
	mfaToken      string
	expiresAt     time.Time
	approved      bool
	polls         int
	lastPoll      time.Time
}

func (s *Server) newOob(u *User, channel directauth.OobChannel, mfaToken string) *oobTxn {
	t := &oobTxn{
		code:      uuid.NewString(),
		username:  u.Username,
		channel:   channel,
		mfaToken:  mfaToken,
		expiresAt: s.cfg.Now().Add(s.cfg.OobTTL),
	}
	switch channel {
	case directauth.ChannelPush:
		t.bindingMethod = u.PushBinding
		if t.bindingMethod == directauth.BindingTransfer {
			t.bindingCode = fmt.Sprintf("%02d", rand.Intn(100))
		}
	default:
		t.bindingMethod = directauth.BindingPrompt
		t.promptCode = fmt.Sprintf("%06d", rand.Intn(1_000_000))
	}

	s.mu.Lock()
	s.oob[t.code] = t
	s.mu.Unlock()

	if s.cfg.OnDelivery != nil {
		s.cfg.OnDelivery(Delivery{
			OobCode:       t.code,
			Username:      t.username,
			Channel:       string(t.channel),
			BindingMethod: string(t.bindingMethod),
			BindingCode:   t.bindingCode,
			Code:          t.promptCode,
		})
	}
	return t
}

// Approve accepts a pending push. Transfer binding requires the code the user picked.
func (s *Server) Approve(oobCode, bindingCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.oob[oobCode]
	if !ok {
		return ErrUnknownOobCode
	}
	if t.bindingMethod == directauth.BindingTransfer && t.bindingCode != bindingCode {
		return ErrBindingMismatch
	}
	t.approved = true
	return nil
}

type redeemResult int

const (
	redeemOK redeemResult = iota
	redeemUnknown
	redeemExpired
	redeemPending
	redeemRejected
	redeemSlowDown
)

// redeem checks a poll or prompt answer and consumes the transaction on success or expiry.
func (s *Server) redeem(oobCode, bindingCode, mfaToken string) (*oobTxn, redeemResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.oob[oobCode]
	if !ok || t.mfaToken != mfaToken {
		return nil, redeemUnknown
	}
	if !s.cfg.Now().Before(t.expiresAt) {
		delete(s.oob, oobCode)
		return nil, redeemExpired
	}

	if t.bindingMethod == directauth.BindingPrompt {
		if bindingCode != t.promptCode {
			return nil, redeemRejected
		}
		delete(s.oob, oobCode)
		return t, redeemOK
	}

	now := s.cfg.Now()
	if s.cfg.EnforceInterval && !t.lastPoll.IsZero() && now.Sub(t.lastPoll) < time.Duration(s.cfg.PollInterval)*time.Second {
		t.lastPoll = now
		return nil, redeemSlowDown
	}
	t.lastPoll = now

	t.polls++
	if !t.approved && s.cfg.AutoApproveAfter > 0 && t.polls >= s.cfg.AutoApproveAfter {
		t.approved = true
	}
	if !t.approved {
		return nil, redeemPending
	}
	delete(s.oob, oobCode)
	return t, redeemOK
}

func (t *oobTxn) response(expiresIn, interval int, challengeType string) wire.ChallengeResponse {
	resp := wire.ChallengeResponse{
		ChallengeType: challengeType,
		OobCode:       t.code,
		Channel:       string(t.channel),
		BindingMethod: string(t.bindingMethod),
		BindingCode:   t.bindingCode,
		ExpiresIn:     &expiresIn,
	}
	if t.channel == directauth.ChannelPush {
		resp.Interval = &interval
	}
	return resp
}
