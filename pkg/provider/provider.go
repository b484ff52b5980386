// Package provider exposes broker-cached BeyondTrust secrets behind a small
// read-only provider interface.
//
// Reads never reach Password Safe: a Provider answers from the cache the
// refresh broker keeps current. A key whose last fetch failed before any good
// value existed resolves to its error sentinel, flagged in the metadata.
//
// Implementations must be safe for concurrent use.
package provider

import (
	"context"
	"time"
)

// Provider resolves secrets by logical key.
type Provider interface {
	// Name returns the provider's stable identifier, e.g. "beyondtrust".
	Name() string

	// Resolve returns the value of ref.Key. Missing keys return
	// NotFoundError.
	Resolve(ctx context.Context, ref Reference) (SecretValue, error)

	// Describe returns metadata without the value. Missing keys report
	// Exists=false rather than an error.
	Describe(ctx context.Context, ref Reference) (Metadata, error)

	// Capabilities returns what the provider supports.
	Capabilities() Capabilities

	// Validate reports whether the provider can serve reads.
	Validate(ctx context.Context) error
}

// Reference identifies a secret.
type Reference struct {
	// Provider must match Name() of the provider that owns the key.
	Provider string

	// Key is the logical key, e.g. bt.acc.DB01.sa or
	// bt.safe.Dev.App1_DB.password. Matching ignores case.
	Key string
}

// SecretValue is a resolved secret. Never log Value.
type SecretValue struct {
	Value     string
	UpdatedAt time.Time
	Metadata  map[string]string
}

// Metadata describes a secret without exposing it.
type Metadata struct {
	Exists    bool
	UpdatedAt time.Time
	Size      int
	// Type is "account", "password", "username" or "sentinel".
	Type string
	Tags map[string]string
}

// Capabilities describes provider features.
type Capabilities struct {
	SupportsVersioning bool
	SupportsMetadata   bool
	SupportsWatching   bool
	SupportsBinary     bool
	RequiresAuth       bool
	AuthMethods        []string
}

// NotFoundError indicates that a requested secret does not exist.
type NotFoundError struct {
	Provider string
	Key      string
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	return "secret not found: " + e.Key + " in " + e.Provider
}

// NotReadyError indicates that the provider has nothing to serve yet.
type NotReadyError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e NotReadyError) Error() string {
	return e.Provider + " not ready: " + e.Message
}
