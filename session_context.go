package directauth

import "log/slog"

// sessionContext is the immutable per-flow configuration plus the current-state cell.
// It is built once by Builder.Build.
type sessionContext struct {
	issuer                string
	clientID              string
	clientSecret          string
	scopes                []string
	authorizationServerID string
	grantTypes            []GrantType
	acrValues             []string
	additionalParameters  map[string]string

	endpoints Endpoints
	executor  Executor
	clock     Clock
	logger    *slog.Logger

	state *stateCell
}

func (sc *sessionContext) now() int64 {
	return sc.clock.CurrentTimeEpochSecond()
}

func (sc *sessionContext) supportedChallengeTypes() []ChallengeGrantType {
	return challengeTypesOf(sc.grantTypes)
}
