package pam

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/metrics"
)

// DefaultTimeout bounds every request, connect to last byte.
const DefaultTimeout = 30 * time.Second

const maxBodyBytes = 8 << 20

// Config configures an HTTPClient.
type Config struct {
	// BaseURL is the API root, e.g. https://pam.example.com/BeyondTrust/api/public/v3
	BaseURL string

	Credentials Credentials

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool

	// CACertPEM is an additional trusted CA bundle in PEM form.
	CACertPEM string

	Timeout time.Duration

	// RequestsPerSecond limits outbound calls; 0 means unlimited.
	RequestsPerSecond float64
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	apiKey     string
	limiter    *rate.Limiter
}

// NewHTTPClient creates a new HTTP client for Password Safe
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("beyondtrust: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("beyondtrust: invalid base URL: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACertPEM != "" {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM([]byte(cfg.CACertPEM)) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    base,
		authHeader: cfg.Credentials.Header(),
		apiKey:     cfg.Credentials.Key,
		limiter:    limiter,
	}, nil
}

// SignAppIn starts an API session
func (c *HTTPClient) SignAppIn(ctx context.Context) error {
	_, err := c.call(ctx, OpSignIn, http.MethodPost, "Auth/SignAppin", nil)
	return err
}

// ListManagedAccounts returns the managed account directory
func (c *HTTPClient) ListManagedAccounts(ctx context.Context) ([]ManagedAccount, error) {
	body, err := c.call(ctx, OpListAccounts, http.MethodGet, "ManagedAccounts", nil)
	if err != nil {
		return nil, err
	}
	return decodeAccounts(body)
}

// CreateRequest checks out an account
func (c *HTTPClient) CreateRequest(ctx context.Context, req CheckoutRequest) (string, error) {
	status, body, err := c.do(ctx, OpCheckout, http.MethodPost, "Requests", req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", &Error{Op: OpCheckout, StatusCode: status, Message: c.snippet(body)}
	}
	id := ParseRequestID(body)
	if id == "" {
		return "", fmt.Errorf("%w: empty request id", ErrDecode)
	}
	return id, nil
}

// ListRequests lists active requests
func (c *HTTPClient) ListRequests(ctx context.Context) ([]ActiveRequest, error) {
	body, err := c.call(ctx, OpListRequests, http.MethodGet, "Requests", nil)
	if err != nil {
		return nil, err
	}
	return decodeRequests(body)
}

// GetCredential fetches the credential for a request
func (c *HTTPClient) GetCredential(ctx context.Context, requestID string) (string, error) {
	body, err := c.call(ctx, OpCredential, http.MethodGet, "Credentials/"+url.PathEscape(requestID), nil)
	if err != nil {
		return "", err
	}
	return DecodeCredential(body), nil
}

// Checkin releases a request
func (c *HTTPClient) Checkin(ctx context.Context, requestID, reason string) error {
	payload := map[string]string{"reason": reason}
	_, err := c.call(ctx, OpCheckin, http.MethodPut, "Requests/"+url.PathEscape(requestID)+"/Checkin", payload)
	return err
}

// ListSafeSecrets lists Secrets Safe items under path
func (c *HTTPClient) ListSafeSecrets(ctx context.Context, path string) ([]SafeItem, error) {
	body, err := c.call(ctx, OpSafe, http.MethodGet, "Secrets-Safe/Secrets?Path="+escapeQuery(path), nil)
	if err != nil {
		return nil, err
	}
	return decodeSafeItems(body)
}

// call performs a request and turns any non-2xx status into *Error.
func (c *HTTPClient) call(ctx context.Context, op, method, path string, payload interface{}) ([]byte, error) {
	status, body, err := c.do(ctx, op, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &Error{Op: op, StatusCode: status, Message: c.snippet(body)}
	}
	return body, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, payload interface{}) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, &Error{Op: op, Err: err}
	}

	var reader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if payload != nil || method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObservePAMRequest(op, 0)
		return 0, nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObservePAMRequest(op, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &Error{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// escapeQuery escapes one query value with %20 for spaces, matching how the
// Password Safe web console encodes folder paths.
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(s)), "+", "%20")
}

// snippet trims an error body for messages. Servers that echo the request
// would otherwise put the API key into logs.
func (c *HTTPClient) snippet(body []byte) string {
	s := logging.Redact(strings.TrimSpace(string(body)), []string{c.apiKey})
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
