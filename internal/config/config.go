// Package config loads the broker's options from defaults, an optional YAML
// file, the environment and the OS keyring, in that order of precedence
// (the keyring only fills a missing API key).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/btbroker/internal/errors"
	"github.com/systmms/btbroker/internal/logging"
)

// Options holds every setting the broker reads.
type Options struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	APIURL             string `yaml:"apiUrl" json:"apiUrl"`
	APIKey             string `yaml:"apiKey" json:"apiKey"`
	RunAsUser          string `yaml:"runAsUser" json:"runAsUser"`
	IgnoreSSLErrors    bool   `yaml:"ignoreSslErrors" json:"ignoreSslErrors"`
	CertificateContent string `yaml:"certificateContent" json:"certificateContent"`

	// RefreshIntervalSeconds of 0 disables periodic refresh.
	RefreshIntervalSeconds int `yaml:"refreshIntervalSeconds" json:"refreshIntervalSeconds"`

	ManagedAccounts           string `yaml:"managedAccounts" json:"managedAccounts"`
	AllManagedAccountsEnabled bool   `yaml:"allManagedAccountsEnabled" json:"allManagedAccountsEnabled"`
	SecretSafePaths           string `yaml:"secretSafePaths" json:"secretSafePaths"`

	TimeoutSeconds       int     `yaml:"timeoutSeconds" json:"timeoutSeconds"`
	MaxRequestsPerSecond float64 `yaml:"maxRequestsPerSecond" json:"maxRequestsPerSecond"`

	// UseKeyring reads a missing API key from the OS keyring.
	UseKeyring bool `yaml:"useKeyring" json:"useKeyring"`
}

// Defaults returns the options used when nothing is configured.
func Defaults() Options {
	return Options{
		Enabled:                true,
		RefreshIntervalSeconds: 1800,
		TimeoutSeconds:         30,
	}
}

// Environment variable names.
const (
	EnvEnabled              = "BEYONDTRUST_ENABLED"
	EnvAPIURL               = "BEYONDTRUST_API_URL"
	EnvAPIKey               = "BEYONDTRUST_API_KEY"
	EnvRunAsUser            = "BEYONDTRUST_RUNAS_USER"
	EnvIgnoreSSLErrors      = "BEYONDTRUST_IGNORE_SSL_ERRORS"
	EnvCertificateContent   = "BEYONDTRUST_CERTIFICATE_CONTENT"
	EnvRefreshInterval      = "BEYONDTRUST_REFRESH_INTERVAL"
	EnvRefreshTime          = "BT_REFRESH_TIME"
	EnvManagedAccounts      = "BEYONDTRUST_MANAGED_ACCOUNTS"
	EnvAllManagedAccounts   = "BEYONDTRUST_ALL_MANAGED_ACCOUNTS_ENABLED"
	EnvSecretSafePaths      = "BEYONDTRUST_SECRET_SAFE_PATHS"
	EnvTimeoutSeconds       = "BEYONDTRUST_TIMEOUT_SECONDS"
	EnvMaxRequestsPerSecond = "BEYONDTRUST_MAX_REQUESTS_PER_SECOND"
	EnvUseKeyring           = "BEYONDTRUST_USE_KEYRING"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Config is the loaded runtime configuration.
type Config struct {
	// Path is an optional YAML file. A missing file is not an error unless
	// Required is set.
	Path     string
	Required bool

	Logger  *logging.Logger
	Options Options

	// Lookup defaults to os.LookupEnv.
	Lookup LookupFunc
}

// Load resolves Options from all sources.
func (c *Config) Load() error {
	opts := Defaults()

	if c.Path != "" {
		err := loadFile(c.Path, &opts)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !c.Required:
			c.logger().Debug("config file %s not found, using environment only", c.Path)
		case errors.Is(err, fs.ErrNotExist):
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or remove it to configure from the environment",
			}
		case err != nil:
			return err
		}
	}

	lookup := c.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	opts.ApplyEnv(lookup)

	if opts.UseKeyring && strings.TrimSpace(opts.APIKey) == "" {
		key, err := KeyringAPIKey(opts.APIURL)
		switch {
		case err == nil:
			opts.APIKey = key
		case errors.Is(err, ErrNoKeyringKey):
			c.logger().Warn("no API key stored in keyring for %s", KeyringUser(opts.APIURL))
		default:
			c.logger().Warn("keyring lookup failed: %v", err)
		}
	}

	c.Options = opts
	return nil
}

func (c *Config) logger() *logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Discard()
}

func loadFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if err := validateDocument(raw); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, opts); err != nil {
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("cannot decode configuration: %v", err),
			Suggestion: "Check value types against the documented options",
		}
	}
	return nil
}

// ApplyEnv overrides options from the environment. Values that do not
// parse leave the previous setting in place.
func (o *Options) ApplyEnv(lookup LookupFunc) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	boolean(EnvEnabled, &o.Enabled)
	str(EnvAPIURL, &o.APIURL)
	str(EnvAPIKey, &o.APIKey)
	str(EnvRunAsUser, &o.RunAsUser)
	boolean(EnvIgnoreSSLErrors, &o.IgnoreSSLErrors)
	str(EnvCertificateContent, &o.CertificateContent)
	integer(EnvRefreshTime, &o.RefreshIntervalSeconds)
	integer(EnvRefreshInterval, &o.RefreshIntervalSeconds)
	str(EnvManagedAccounts, &o.ManagedAccounts)
	boolean(EnvAllManagedAccounts, &o.AllManagedAccountsEnabled)
	str(EnvSecretSafePaths, &o.SecretSafePaths)
	integer(EnvTimeoutSeconds, &o.TimeoutSeconds)
	if v, ok := lookup(EnvMaxRequestsPerSecond); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			o.MaxRequestsPerSecond = f
		}
	}
	boolean(EnvUseKeyring, &o.UseKeyring)
}

// RefreshInterval returns the refresh period.
func (o Options) RefreshInterval() time.Duration {
	if o.RefreshIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(o.RefreshIntervalSeconds) * time.Second
}

// Timeout returns the HTTP timeout.
func (o Options) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}
