package directauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// step is one wire call plus the classification of its response.
type step interface {
	process(ctx context.Context) State
}

type tokenStep struct {
	sc  *sessionContext
	req *Request
}

func (s tokenStep) process(ctx context.Context) State {
	return s.sc.execute(ctx, "token", s.req, shapeToken, nil)
}

type challengeStep struct {
	sc  *sessionContext
	req *Request
	mfa MfaContext
}

func (s challengeStep) process(ctx context.Context) State {
	mfa := s.mfa.clone()
	return s.sc.execute(ctx, "challenge", s.req, shapeChallenge, &mfa)
}

type oobAuthenticateStep struct {
	sc  *sessionContext
	req *Request
}

func (s oobAuthenticateStep) process(ctx context.Context) State {
	return s.sc.execute(ctx, "primary-authenticate", s.req, shapeOob, nil)
}

// failedStep reports a state decided before any wire call.
type failedStep struct{ state State }

func (s failedStep) process(context.Context) State { return s.state }

func (sc *sessionContext) execute(ctx context.Context, name string, req *Request, shape responseShape, mfa *MfaContext) State {
	log := sc.logger.With(slog.String("step", name), slog.String("grant_type", req.Form.Get("grant_type")))

	if errors.Is(ctx.Err(), context.Canceled) {
		log.InfoContext(ctx, "step canceled before dispatch")
		return &Canceled{}
	}

	log.DebugContext(ctx, "step started", slog.String("url", req.URL))
	resp, err := sc.call(ctx, req)
	if err != nil {
		return sc.failure(ctx, log, err)
	}
	if resp == nil {
		log.WarnContext(ctx, "executor returned no response")
		return newInternalError(ErrorCodeUnknown, "executor returned no response", nil)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		log.InfoContext(ctx, "step canceled after response")
		return &Canceled{}
	}

	next := sc.classify(resp, shape, mfa)
	if ie, ok := next.(*InternalError); ok {
		log.WarnContext(ctx, "response classification failed",
			slog.Int("status", resp.StatusCode),
			slog.String("code", string(ie.Code)),
			slog.String("error", ie.Error()))
	} else {
		log.DebugContext(ctx, "step finished", slog.Int("status", resp.StatusCode), slog.String("state", string(next.Kind())))
	}
	return next
}

// call runs the executor and turns a panic into an error.
func (sc *sessionContext) call(ctx context.Context, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return sc.executor.Execute(ctx, req)
}

func (sc *sessionContext) failure(ctx context.Context, log *slog.Logger, err error) State {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		log.InfoContext(ctx, "step canceled")
		return &Canceled{}
	}
	log.WarnContext(ctx, "executor failed", slog.String("error", err.Error()))
	return newInternalError(ErrorCodeUnknown, err.Error(), err)
}
