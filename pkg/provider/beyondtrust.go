package provider

import (
	"context"
	"strings"

	"github.com/systmms/btbroker/internal/cache"
)

// BeyondTrustName is the Name of a BeyondTrust provider.
const BeyondTrustName = "beyondtrust"

// Store is the read side of the broker cache.
type Store interface {
	Get(key string) (string, bool)
	Keys() []string
}

// describer is implemented by stores that track entry freshness.
type describer interface {
	Describe(key string) (cache.Info, bool)
}

// BeyondTrust serves keys from a broker cache.
type BeyondTrust struct {
	store Store
	ready func() bool
}

// NewBeyondTrust creates a provider over store. ready, when not nil, gates
// Validate until the broker finished its first refresh.
func NewBeyondTrust(store Store, ready func() bool) *BeyondTrust {
	return &BeyondTrust{store: store, ready: ready}
}

// Name returns the provider name
func (p *BeyondTrust) Name() string {
	return BeyondTrustName
}

// Resolve returns the cached value. Error sentinels are returned as values
// with Metadata["sentinel"] set to "true".
func (p *BeyondTrust) Resolve(ctx context.Context, ref Reference) (SecretValue, error) {
	if err := ctx.Err(); err != nil {
		return SecretValue{}, err
	}

	value, ok := p.store.Get(ref.Key)
	if !ok {
		return SecretValue{}, NotFoundError{Provider: p.Name(), Key: ref.Key}
	}

	sv := SecretValue{Value: value, Metadata: map[string]string{"type": keyType(ref.Key, value)}}
	if cache.IsSentinel(value) {
		sv.Metadata["sentinel"] = "true"
	}
	if d, ok := p.store.(describer); ok {
		if info, ok := d.Describe(ref.Key); ok {
			sv.UpdatedAt = info.UpdatedAt
			sv.Metadata["key"] = info.Key
		}
	}
	return sv, nil
}

// Describe returns key metadata without the value.
func (p *BeyondTrust) Describe(ctx context.Context, ref Reference) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	value, ok := p.store.Get(ref.Key)
	if !ok {
		return Metadata{Exists: false}, nil
	}

	meta := Metadata{
		Exists: true,
		Size:   len(value),
		Type:   keyType(ref.Key, value),
	}
	if d, ok := p.store.(describer); ok {
		if info, ok := d.Describe(ref.Key); ok {
			meta.UpdatedAt = info.UpdatedAt
		}
	}
	return meta, nil
}

// Capabilities returns the provider's capabilities
func (p *BeyondTrust) Capabilities() Capabilities {
	return Capabilities{
		SupportsMetadata: true,
		RequiresAuth:     true,
		AuthMethods:      []string{"api_key"},
	}
}

// Validate fails until the broker has completed its initial refresh.
func (p *BeyondTrust) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ready != nil && !p.ready() {
		return NotReadyError{Provider: p.Name(), Message: "initial refresh has not completed"}
	}
	return nil
}

// Keys lists the cached keys in sorted order.
func (p *BeyondTrust) Keys() []string {
	return p.store.Keys()
}

func keyType(key, value string) string {
	if cache.IsSentinel(value) {
		return "sentinel"
	}
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".password") && strings.HasPrefix(lower, "bt.safe."):
		return "password"
	case strings.HasSuffix(lower, ".username") && strings.HasPrefix(lower, "bt.safe."):
		return "username"
	}
	return "account"
}

var _ Provider = (*BeyondTrust)(nil)
