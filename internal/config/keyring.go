package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service the API key is stored under.
const KeyringService = "btbroker"

// ErrNoKeyringKey means the keyring holds no key for the API URL.
var ErrNoKeyringKey = errors.New("no API key in keyring")

// KeyringUser returns the keyring account for an API URL: its host, or the
// raw value when it does not parse.
func KeyringUser(apiURL string) string {
	raw := strings.TrimSpace(apiURL)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	if raw == "" {
		return "default"
	}
	return raw
}

// KeyringAPIKey reads the stored API key for apiURL.
func KeyringAPIKey(apiURL string) (string, error) {
	secret, err := keyring.Get(KeyringService, KeyringUser(apiURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoKeyringKey
		}
		return "", fmt.Errorf("keyring: %w", err)
	}
	return secret, nil
}

// StoreAPIKey saves key in the keyring for apiURL.
func StoreAPIKey(apiURL, key string) error {
	if err := keyring.Set(KeyringService, KeyringUser(apiURL), key); err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key for apiURL. A missing key is not an
// error.
func DeleteAPIKey(apiURL string) error {
	err := keyring.Delete(KeyringService, KeyringUser(apiURL))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring: %w", err)
	}
	return nil
}
