package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Value keeps one secret string encrypted in a memguard enclave. The
// plaintext only exists while Reveal copies it out.
//
// The empty string is stored without an enclave since memguard refuses
// zero-length buffers.
type Value struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewValue seals s into a new enclave.
func NewValue(s string) *Value {
	v := &Value{}
	if s != "" {
		// NewEnclave wipes its input, so hand it a private copy.
		v.enclave = memguard.NewEnclave([]byte(s))
	}
	return v
}

// Reveal decrypts the value and returns a copy of the plaintext.
// A destroyed or empty Value reveals "".
func (v *Value) Reveal() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed || v.enclave == nil {
		return "", nil
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. It is idempotent; later Reveal calls return "".
func (v *Value) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enclave = nil
	v.destroyed = true
}

// Purge wipes every memguard buffer in the process. Call it once at exit.
func Purge() {
	memguard.Purge()
}
