package commands

import (
	"sort"
	"strings"

	"github.com/systmms/btbroker/internal/accounts"
	"github.com/systmms/btbroker/internal/config"
	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/pam"
	"github.com/systmms/btbroker/internal/refresh"
	"github.com/systmms/btbroker/internal/safe"
)

func loggerOf(cfg *config.Config) *logging.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return logging.Discard()
}

// loadOptions loads and validates the configuration. Without an API key
// nothing is fetched, so the remaining settings are not checked.
func loadOptions(cfg *config.Config) (config.Options, error) {
	if err := cfg.Load(); err != nil {
		return config.Options{}, err
	}
	if credentials(cfg.Options).Empty() {
		return cfg.Options, nil
	}
	if err := cfg.Options.Validate(); err != nil {
		return config.Options{}, err
	}
	return cfg.Options, nil
}

func credentials(opts config.Options) pam.Credentials {
	return pam.ParseAuth(opts.APIKey, opts.RunAsUser)
}

func pamConfig(opts config.Options) pam.Config {
	return pam.Config{
		BaseURL:            opts.APIURL,
		Credentials:        credentials(opts),
		InsecureSkipVerify: opts.IgnoreSSLErrors,
		CACertPEM:          opts.CertificateContent,
		Timeout:            opts.Timeout(),
		RequestsPerSecond:  opts.MaxRequestsPerSecond,
	}
}

// brokerSettings returns what the refresh broker fetches.
func brokerSettings(opts config.Options) refresh.Settings {
	return refresh.Settings{
		Enabled: opts.Enabled,
		APIKey:  credentials(opts).Key,
		Accounts: accounts.Options{
			All:  opts.AllManagedAccountsEnabled,
			List: opts.ManagedAccounts,
		},
		SafePaths: safe.SplitPaths(opts.SecretSafePaths),
		Interval:  opts.RefreshInterval(),
	}
}

func newClient(opts config.Options) (pam.Client, error) {
	return pam.NewHTTPClient(pamConfig(opts))
}

// newBroker builds a broker for opts. An inactive broker gets no client
// since it never calls one.
func newBroker(cfg *config.Config, opts config.Options, settings refresh.Settings) (*refresh.Broker, error) {
	var client pam.Client
	if settings.Enabled && strings.TrimSpace(settings.APIKey) != "" {
		c, err := newClient(opts)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return refresh.New(settings, client, loggerOf(cfg).Named("refresh")), nil
}

// similarKeys returns up to limit keys sharing the last segment of key.
func similarKeys(keys []string, key string, limit int) []string {
	want := strings.ToLower(key)
	if i := strings.LastIndex(want, "."); i >= 0 {
		want = want[i+1:]
	}

	var out []string
	for _, k := range keys {
		if want != "" && strings.Contains(strings.ToLower(k), want) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
