package config

import (
	"errors"
	"net/url"
	"strings"

	dserrors "github.com/systmms/btbroker/internal/errors"
)

// Validate checks the options. A disabled configuration is always valid.
// The returned error joins one ConfigError per problem.
func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}

	var errs []error

	u, err := url.Parse(strings.TrimSpace(o.APIURL))
	switch {
	case strings.TrimSpace(o.APIURL) == "":
		errs = append(errs, dserrors.ConfigError{
			Field:      "apiUrl",
			Message:    "API URL is required",
			Suggestion: "Set " + EnvAPIURL + ", e.g. https://pam.example.com/BeyondTrust/api/public/v3",
		})
	case err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "":
		errs = append(errs, dserrors.ConfigError{
			Field:      "apiUrl",
			Value:      o.APIURL,
			Message:    "API URL must be an absolute http(s) URL",
			Suggestion: "Include the scheme and host, e.g. https://pam.example.com/BeyondTrust/api/public/v3",
		})
	}

	if o.RefreshIntervalSeconds < 0 {
		errs = append(errs, dserrors.ConfigError{
			Field:      "refreshIntervalSeconds",
			Value:      o.RefreshIntervalSeconds,
			Message:    "refresh interval cannot be negative",
			Suggestion: "Use 0 to fetch once at startup",
		})
	}
	if o.TimeoutSeconds < 0 {
		errs = append(errs, dserrors.ConfigError{
			Field:   "timeoutSeconds",
			Value:   o.TimeoutSeconds,
			Message: "timeout cannot be negative",
		})
	}
	if o.MaxRequestsPerSecond < 0 {
		errs = append(errs, dserrors.ConfigError{
			Field:      "maxRequestsPerSecond",
			Value:      o.MaxRequestsPerSecond,
			Message:    "request rate cannot be negative",
			Suggestion: "Use 0 for no limit",
		})
	}

	return errors.Join(errs...)
}
