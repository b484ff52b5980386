package fakes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/systmms/btbroker/internal/pam"
)

// Call is one recorded invocation of the fake.
type Call struct {
	Op  string
	Arg string
}

// CheckoutResponse scripts the answer to CreateRequest for one account.
type CheckoutResponse struct {
	RequestID string
	Err       error
}

// CredentialResponse scripts one GetCredential attempt.
type CredentialResponse struct {
	Value string
	Err   error
}

// FakePAMClient is a test double for pam.Client. It is safe for concurrent
// use so broker tests can read it while a cycle runs.
type FakePAMClient struct {
	mu sync.Mutex

	// SignInErr is returned by SignAppIn if set
	SignInErr error

	// Accounts is the managed account directory
	Accounts []pam.ManagedAccount

	// AccountsErr is returned by ListManagedAccounts if set
	AccountsErr error

	// Checkouts maps "systemID/accountID" to the CreateRequest answer.
	// Unscripted accounts get a 500.
	Checkouts map[string]CheckoutResponse

	// ActiveRequests is returned by ListRequests
	ActiveRequests []pam.ActiveRequest

	// ListRequestsErr is returned by ListRequests if set
	ListRequestsErr error

	// Credentials maps a request id to successive GetCredential answers.
	// The last answer repeats once the script runs out. Unscripted ids get a 404.
	Credentials map[string][]CredentialResponse

	// CheckinErr is returned by Checkin if set
	CheckinErr error

	// Safe maps a secrets-safe path to its items
	Safe map[string][]pam.SafeItem

	// SafeErr maps a secrets-safe path to an error
	SafeErr map[string]error

	// OnCall runs at the start of every call, outside the lock.
	OnCall func(op string)

	calls       []Call
	credAttempt map[string]int
}

// NewFakePAMClient creates an empty fake
func NewFakePAMClient() *FakePAMClient {
	return &FakePAMClient{
		Checkouts:   make(map[string]CheckoutResponse),
		Credentials: make(map[string][]CredentialResponse),
		Safe:        make(map[string][]pam.SafeItem),
		SafeErr:     make(map[string]error),
		credAttempt: make(map[string]int),
	}
}

func accountKey(systemID, accountID int) string {
	return fmt.Sprintf("%d/%d", systemID, accountID)
}

// AddAccount appends a managed account to the directory
func (f *FakePAMClient) AddAccount(systemID int, systemName string, accountID int, accountName string) *FakePAMClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Accounts = append(f.Accounts, pam.ManagedAccount{
		SystemID: systemID, SystemName: systemName, AccountID: accountID, AccountName: accountName,
	})
	return f
}

// ScriptCheckout sets the CreateRequest answer for an account
func (f *FakePAMClient) ScriptCheckout(systemID, accountID int, resp CheckoutResponse) *FakePAMClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Checkouts[accountKey(systemID, accountID)] = resp
	return f
}

// ScriptCredential sets the GetCredential answers for a request id
func (f *FakePAMClient) ScriptCredential(requestID string, resps ...CredentialResponse) *FakePAMClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Credentials[requestID] = resps
	delete(f.credAttempt, requestID)
	return f
}

// SetSafe sets the items for a secrets-safe path
func (f *FakePAMClient) SetSafe(path string, items ...pam.SafeItem) *FakePAMClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Safe[path] = items
	return f
}

func (f *FakePAMClient) record(op, arg string) {
	if f.OnCall != nil {
		f.OnCall(op)
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Arg: arg})
	f.mu.Unlock()
}

// Calls returns a copy of the recorded calls in order
func (f *FakePAMClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount counts recorded calls of one operation
func (f *FakePAMClient) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Args returns the arguments of every call of one operation
func (f *FakePAMClient) Args(op string) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Reset forgets recorded calls and credential attempt counters
func (f *FakePAMClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.credAttempt = make(map[string]int)
}

// SignAppIn starts an API session
func (f *FakePAMClient) SignAppIn(ctx context.Context) error {
	f.record(pam.OpSignIn, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SignInErr
}

// ListManagedAccounts returns the directory
func (f *FakePAMClient) ListManagedAccounts(ctx context.Context) ([]pam.ManagedAccount, error) {
	f.record(pam.OpListAccounts, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AccountsErr != nil {
		return nil, f.AccountsErr
	}
	out := make([]pam.ManagedAccount, len(f.Accounts))
	copy(out, f.Accounts)
	return out, nil
}

// CreateRequest returns the scripted checkout answer
func (f *FakePAMClient) CreateRequest(ctx context.Context, req pam.CheckoutRequest) (string, error) {
	key := accountKey(req.SystemID, req.AccountID)
	f.record(pam.OpCheckout, key)
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.Checkouts[key]
	if !ok {
		return "", &pam.Error{Op: pam.OpCheckout, StatusCode: http.StatusInternalServerError, Message: "unscripted"}
	}
	return resp.RequestID, resp.Err
}

// ListRequests returns the active requests
func (f *FakePAMClient) ListRequests(ctx context.Context) ([]pam.ActiveRequest, error) {
	f.record(pam.OpListRequests, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListRequestsErr != nil {
		return nil, f.ListRequestsErr
	}
	out := make([]pam.ActiveRequest, len(f.ActiveRequests))
	copy(out, f.ActiveRequests)
	return out, nil
}

// GetCredential returns the next scripted credential answer
func (f *FakePAMClient) GetCredential(ctx context.Context, requestID string) (string, error) {
	f.record(pam.OpCredential, requestID)
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.Credentials[requestID]
	if len(script) == 0 {
		return "", &pam.Error{Op: pam.OpCredential, StatusCode: http.StatusNotFound, Message: "unscripted"}
	}
	i := f.credAttempt[requestID]
	f.credAttempt[requestID] = i + 1
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i].Value, script[i].Err
}

// Checkin records a release
func (f *FakePAMClient) Checkin(ctx context.Context, requestID, reason string) error {
	f.record(pam.OpCheckin, requestID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CheckinErr
}

// ListSafeSecrets returns the items for path
func (f *FakePAMClient) ListSafeSecrets(ctx context.Context, path string) ([]pam.SafeItem, error) {
	f.record(pam.OpSafe, path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SafeErr[path]; err != nil {
		return nil, err
	}
	items, ok := f.Safe[path]
	if !ok {
		return nil, &pam.Error{Op: pam.OpSafe, StatusCode: http.StatusNotFound, Message: "no such folder"}
	}
	return items, nil
}

// ErrFakeTransport simulates a network failure (no HTTP status)
var ErrFakeTransport = &pam.Error{Op: "fake", Err: errors.New("connection reset by peer")}

// Conflict is the checkout answer when another request is outstanding
func Conflict() CheckoutResponse {
	return CheckoutResponse{Err: &pam.Error{Op: pam.OpCheckout, StatusCode: http.StatusConflict}}
}

// Forbidden is the 403 variant of Conflict
func Forbidden() CheckoutResponse {
	return CheckoutResponse{Err: &pam.Error{Op: pam.OpCheckout, StatusCode: http.StatusForbidden}}
}

// Str returns a pointer to s, for building SafeItems
func Str(s string) *string {
	return &s
}

// Ensure FakePAMClient implements pam.Client
var _ pam.Client = (*FakePAMClient)(nil)
