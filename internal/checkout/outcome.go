package checkout

import "github.com/systmms/btbroker/internal/cache"

// Outcome is the terminal state of one checkout.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRequestIDNotFound: no request could be created or adopted.
	OutcomeRequestIDNotFound
	// OutcomeException: a transport or unexpected error interrupted the flow.
	OutcomeException
	// OutcomeCredentialFailed: polling ran out of attempts.
	OutcomeCredentialFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRequestIDNotFound:
		return "request_id_not_found"
	case OutcomeException:
		return "exception"
	case OutcomeCredentialFailed:
		return "credential_failed"
	}
	return "unknown"
}

// Sentinel returns the cache sentinel recorded for a failed outcome, "" for
// success.
func (o Outcome) Sentinel() string {
	switch o {
	case OutcomeRequestIDNotFound:
		return cache.SentinelRequestIDNotFound
	case OutcomeException:
		return cache.SentinelException
	case OutcomeCredentialFailed:
		return cache.SentinelCredentialFailed
	}
	return ""
}
