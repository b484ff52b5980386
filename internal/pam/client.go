// Package pam talks to the BeyondTrust Password Safe public REST API (v3).
//
// Client abstracts the calls the broker makes so the checkout and refresh
// logic can be tested against a fake; HTTPClient is the real implementation.
package pam

import "context"

// CheckoutRequest is the body of POST Requests.
type CheckoutRequest struct {
	SystemID        int    `json:"systemId"`
	AccountID       int    `json:"accountId"`
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason"`
}

// Client abstracts Password Safe API operations for testing
type Client interface {
	// SignAppIn starts an API session. The broker ignores its result.
	SignAppIn(ctx context.Context) error

	// ListManagedAccounts returns the full managed account directory.
	ListManagedAccounts(ctx context.Context) ([]ManagedAccount, error)

	// CreateRequest checks out an account and returns the request id.
	// A refused checkout returns *Error; see Error.IsConflict.
	CreateRequest(ctx context.Context, req CheckoutRequest) (string, error)

	// ListRequests lists the caller's active requests.
	ListRequests(ctx context.Context) ([]ActiveRequest, error)

	// GetCredential fetches the decoded credential for a request.
	GetCredential(ctx context.Context, requestID string) (string, error)

	// Checkin releases a request.
	Checkin(ctx context.Context, requestID, reason string) error

	// ListSafeSecrets lists the Secrets Safe items under path.
	ListSafeSecrets(ctx context.Context, path string) ([]SafeItem, error)
}
