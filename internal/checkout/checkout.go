// Package checkout implements the managed account checkout flow against
// Password Safe: create (or adopt) a request, poll for the credential, and
// always release the request.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/metrics"
	"github.com/systmms/btbroker/internal/pam"
)

// Defaults for a Checkout.
const (
	DefaultAttempts        = 3
	DefaultPollInterval    = time.Second
	DefaultDurationMinutes = 5
	DefaultReason          = "AutoFetch"
	DefaultReleaseTimeout  = 10 * time.Second

	releaseReason = "Done"
)

// LastKnown supplies the last good value for a key when a checkout fails.
type LastKnown interface {
	LastGood(key string) (string, bool)
}

// Request is the Password Safe request backing one checkout. ID is empty
// until a request is created or adopted.
type Request struct {
	ID        string
	SystemID  int
	AccountID int
	// Adopted is set when ID came from an already active request.
	Adopted bool
}

// Result is the outcome of Run.
type Result struct {
	Key     string
	Account pam.ManagedAccount
	Request Request
	Outcome Outcome

	// Value is the credential on success. On failure it is the last good
	// value for Key (Stale is set) or the outcome's sentinel.
	Value string
	Stale bool

	// Released is set when a check-in call was issued.
	Released bool

	// Err is the underlying cause of a failure.
	Err error
}

// OK reports whether a fresh credential was obtained.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// KeyFor returns the cache key of a managed account.
func KeyFor(acc pam.ManagedAccount) string {
	return "bt.acc." + strings.TrimSpace(acc.SystemName) + "." + strings.TrimSpace(acc.AccountName)
}

// Checkout runs the checkout flow for one account at a time. Fields may be
// changed before first use; zero values fall back to the defaults.
type Checkout struct {
	Client    pam.Client
	LastKnown LastKnown
	Logger    *logging.Logger

	Attempts        int
	PollInterval    time.Duration
	DurationMinutes int
	Reason          string
	ReleaseTimeout  time.Duration
}

// New creates a Checkout with default settings. lastKnown may be nil.
func New(client pam.Client, lastKnown LastKnown, logger *logging.Logger) *Checkout {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checkout{
		Client:          client,
		LastKnown:       lastKnown,
		Logger:          logger,
		Attempts:        DefaultAttempts,
		PollInterval:    DefaultPollInterval,
		DurationMinutes: DefaultDurationMinutes,
		Reason:          DefaultReason,
		ReleaseTimeout:  DefaultReleaseTimeout,
	}
}

// Run obtains the credential for acc. It never returns an error; failures
// are described by the Result. A request id obtained along the way is
// released before Run returns, whatever the outcome.
func (c *Checkout) Run(ctx context.Context, acc pam.ManagedAccount) (res Result) {
	res = Result{
		Key:     KeyFor(acc),
		Account: acc,
		Request: Request{SystemID: acc.SystemID, AccountID: acc.AccountID},
	}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeException
			res.Err = fmt.Errorf("checkout panic: %v", r)
			res.Value = ""
		}
		c.release(ctx, &res)
		if !res.OK() {
			c.fallback(&res)
		}
		metrics.ObserveCheckout(res.Outcome.String())
	}()

	outcome, err := c.acquire(ctx, &res.Request)
	if err != nil {
		res.Outcome, res.Err = outcome, err
		c.logger().Warn("checkout of %s failed: %s: %v", res.Key, outcome, err)
		return res
	}

	value, outcome, err := c.poll(ctx, res.Request.ID)
	if err != nil {
		res.Outcome, res.Err = outcome, err
		c.logger().Warn("credential for %s (request %s) unavailable: %s: %v", res.Key, res.Request.ID, outcome, err)
		return res
	}

	res.Outcome = OutcomeSuccess
	res.Value = value
	c.logger().Debug("checked out %s (request %s, adopted=%v)", res.Key, res.Request.ID, res.Request.Adopted)
	return res
}

// errNoRequestID is the cause recorded when neither a new nor an existing
// request id could be found.
var errNoRequestID = errors.New("request id not found")

// acquire fills req.ID with a new request or, on conflict, an active one.
func (c *Checkout) acquire(ctx context.Context, req *Request) (Outcome, error) {
	id, err := c.Client.CreateRequest(ctx, pam.CheckoutRequest{
		SystemID:        req.SystemID,
		AccountID:       req.AccountID,
		DurationMinutes: c.durationMinutes(),
		Reason:          c.reason(),
	})
	if err == nil {
		req.ID = id
		if id == "" {
			return OutcomeRequestIDNotFound, errNoRequestID
		}
		return OutcomeSuccess, nil
	}

	switch {
	case pam.IsConflict(err):
		existing, lookupErr := c.findActive(ctx, req.SystemID, req.AccountID)
		if lookupErr != nil {
			return OutcomeRequestIDNotFound, fmt.Errorf("%w: %v (after %v)", errNoRequestID, lookupErr, err)
		}
		if existing == "" {
			return OutcomeRequestIDNotFound, fmt.Errorf("%w: no active request after %v", errNoRequestID, err)
		}
		req.ID = existing
		req.Adopted = true
		c.logger().Info("adopted active request %s for system %d account %d", existing, req.SystemID, req.AccountID)
		return OutcomeSuccess, nil

	case pam.StatusCode(err) > 0, errors.Is(err, pam.ErrDecode):
		return OutcomeRequestIDNotFound, fmt.Errorf("%w: %v", errNoRequestID, err)

	default:
		return OutcomeException, err
	}
}

// findActive scans the active requests for one on (systemID, accountID).
func (c *Checkout) findActive(ctx context.Context, systemID, accountID int) (string, error) {
	active, err := c.Client.ListRequests(ctx)
	if err != nil {
		c.logger().Warn("could not list active requests: %v", err)
		return "", err
	}
	for _, r := range active {
		if r.SystemID == systemID && r.AccountID == accountID {
			return r.RequestID, nil
		}
	}
	return "", nil
}

// poll asks for the credential up to Attempts times, PollInterval apart.
// A response with an HTTP status is retried; a transport failure is not.
func (c *Checkout) poll(ctx context.Context, requestID string) (string, Outcome, error) {
	attempts := c.attempts()

	var lastErr error
	for i := 1; i <= attempts; i++ {
		value, err := c.Client.GetCredential(ctx, requestID)
		if err == nil {
			return value, OutcomeSuccess, nil
		}
		if pam.StatusCode(err) == 0 {
			return "", OutcomeException, err
		}
		lastErr = err
		c.logger().Debug("credential attempt %d/%d for request %s: %v", i, attempts, requestID, err)

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", OutcomeCredentialFailed, ctx.Err()
		case <-time.After(c.pollInterval()):
		}
	}
	return "", OutcomeCredentialFailed, fmt.Errorf("credential fetch failed after %d attempts: %w", attempts, lastErr)
}

// release checks the request back in. It runs on a context detached from
// ctx's cancellation so an interrupted cycle still releases its request.
func (c *Checkout) release(ctx context.Context, res *Result) {
	id := res.Request.ID
	if !isNumeric(id) {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout())
	defer cancel()

	res.Released = true
	if err := c.Client.Checkin(rctx, id, releaseReason); err != nil {
		c.logger().Debug("check-in of request %s failed: %v", id, err)
	}
}

func (c *Checkout) fallback(res *Result) {
	if c.LastKnown != nil {
		if v, ok := c.LastKnown.LastGood(res.Key); ok {
			res.Value = v
			res.Stale = true
			return
		}
	}
	res.Value = res.Outcome.Sentinel()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Checkout) attempts() int {
	if c.Attempts > 0 {
		return c.Attempts
	}
	return DefaultAttempts
}

func (c *Checkout) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c *Checkout) durationMinutes() int {
	if c.DurationMinutes > 0 {
		return c.DurationMinutes
	}
	return DefaultDurationMinutes
}

func (c *Checkout) reason() string {
	if c.Reason != "" {
		return c.Reason
	}
	return DefaultReason
}

func (c *Checkout) releaseTimeout() time.Duration {
	if c.ReleaseTimeout > 0 {
		return c.ReleaseTimeout
	}
	return DefaultReleaseTimeout
}

func (c *Checkout) logger() *logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Discard()
}
