package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ContractTest is the behaviour every Provider must show.
type ContractTest struct {
	// CreateProvider creates a new instance of the provider to test
	CreateProvider func(t *testing.T) Provider

	// SetupTestSecret makes a secret available to p and returns its key
	// and a cleanup function
	SetupTestSecret func(t *testing.T, p Provider) (key string, cleanup func())

	SkipValidation bool
}

// RunContractTests runs the provider contract suite
func RunContractTests(t *testing.T, contract ContractTest) {
	t.Run("Contract", func(t *testing.T) {
		t.Run("Name", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if p.Name() == "" || p.Name() != p.Name() {
				t.Errorf("Provider.Name() must be stable and non-empty, got %q", p.Name())
			}
		})

		t.Run("Capabilities", func(t *testing.T) {
			caps := contract.CreateProvider(t).Capabilities()
			if caps.RequiresAuth && len(caps.AuthMethods) == 0 {
				t.Error("Provider requires auth but specifies no auth methods")
			}
		})

		if !contract.SkipValidation {
			t.Run("Validate", func(t *testing.T) {
				testValidate(t, contract)
			})
		}

		t.Run("Resolve", func(t *testing.T) {
			testResolve(t, contract)
		})

		t.Run("ResolveNotFound", func(t *testing.T) {
			p := contract.CreateProvider(t)
			ref := Reference{Provider: p.Name(), Key: "missing-" + time.Now().Format("20060102150405")}

			secret, err := p.Resolve(context.Background(), ref)
			if err == nil {
				t.Fatalf("Provider.Resolve() should fail for a missing key, got %d bytes", len(secret.Value))
			}
			var nf NotFoundError
			if !errors.As(err, &nf) {
				t.Errorf("Provider.Resolve() error = %v, want NotFoundError", err)
			}

			meta, err := p.Describe(context.Background(), ref)
			if err != nil || meta.Exists {
				t.Errorf("Provider.Describe() = %+v, %v; want Exists=false, nil", meta, err)
			}
		})

		t.Run("ContextCancellation", func(t *testing.T) {
			p := contract.CreateProvider(t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := p.Resolve(ctx, Reference{Key: "any-key"}); !errors.Is(err, context.Canceled) {
				t.Errorf("Provider.Resolve() with cancelled context = %v, want context.Canceled", err)
			}
		})
	})
}

func testValidate(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	done := make(chan error, 1)
	go func() {
		done <- p.Validate(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Logf("Provider validation failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Provider.Validate() timed out after 5 seconds")
	}
}

func testResolve(t *testing.T, contract ContractTest) {
	if contract.SetupTestSecret == nil {
		t.Skip("SetupTestSecret not provided, skipping resolve test")
	}

	p := contract.CreateProvider(t)
	key, cleanup := contract.SetupTestSecret(t, p)
	defer cleanup()

	secret, err := p.Resolve(context.Background(), Reference{Provider: p.Name(), Key: key})
	if err != nil {
		t.Fatalf("Provider.Resolve() failed: %v", err)
	}
	if secret.Value == "" {
		t.Error("Provider.Resolve() returned empty value")
	}

	meta, err := p.Describe(context.Background(), Reference{Provider: p.Name(), Key: key})
	if err != nil {
		t.Fatalf("Provider.Describe() failed: %v", err)
	}
	if !meta.Exists {
		t.Error("Provider.Describe() returned Exists=false for existing secret")
	}
}
