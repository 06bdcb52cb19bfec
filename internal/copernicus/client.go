package copernicus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultTokenURL   = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	DefaultProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"
	DefaultCatalogURL = "https://sh.dataspace.copernicus.eu/api/v1/catalog/1.0.0/search"
)

var (
	ErrUnauthorized = errors.New("unauthorized access, check your client ID and secret")
	ErrNoData       = errors.New("no data for the requested scene")
	ErrMissingCreds = errors.New("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
)

type Config struct {
	// ClientIDs and ClientSecrets are comma separated lists of the same
	// length. Credentials are tried in order.
	ClientIDs     string
	ClientSecrets string
	TokenURL      string
	ProcessURL    string
	CatalogURL    string

	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// HTTPClient is the transport used for token and API calls. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
}

type Client struct {
	clients    []*http.Client
	processURL string
	catalogURL string

	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientIDs == "" || cfg.ClientSecrets == "" || cfg.TokenURL == "" {
		return nil, ErrMissingCreds
	}

	clientIDList := strings.Split(cfg.ClientIDs, ",")
	clientSecretList := strings.Split(cfg.ClientSecrets, ",")
	if len(clientIDList) != len(clientSecretList) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	c := &Client{
		processURL:      cfg.ProcessURL,
		catalogURL:      cfg.CatalogURL,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
	if c.processURL == "" {
		c.processURL = DefaultProcessURL
	}
	if c.catalogURL == "" {
		c.catalogURL = DefaultCatalogURL
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 5
	}
	if c.initialInterval <= 0 {
		c.initialInterval = 2 * time.Second
	}
	if c.maxInterval <= 0 {
		c.maxInterval = 30 * time.Second
	}

	for i, clientID := range clientIDList {
		config := &clientcredentials.Config{
			ClientID:     strings.TrimSpace(clientID),
			ClientSecret: strings.TrimSpace(clientSecretList[i]),
			TokenURL:     cfg.TokenURL,
		}
		c.clients = append(c.clients, config.Client(ctx))
	}

	return c, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxInterval = c.maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
}

// withCredentials runs op with each credential until one is not rejected.
// Every attempt is retried with exponential backoff; unauthorized responses
// are not retried.
func withCredentials[T any](ctx context.Context, c *Client, name string, op func(*http.Client) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i, httpClient := range c.clients {
		attempt := 0
		result, err := backoff.RetryNotifyWithData(func() (T, error) {
			attempt++
			return op(httpClient)
		}, c.newBackOff(ctx), func(err error, wait time.Duration) {
			slog.Warn("copernicus request failed, retrying",
				"request", name, "credential", i, "attempt", attempt, "wait", wait, "error", err)
		})
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		if !errors.Is(err, ErrUnauthorized) {
			break
		}
	}
	if errors.Is(lastErr, ErrUnauthorized) || errors.Is(lastErr, ErrNoData) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("failed to %s after %d attempts: %w", name, c.maxRetries+1, lastErr)
}

// do sends the request and returns the body of a 200 response. Token
// endpoint rejections are reported as ErrUnauthorized.
func do(httpClient *http.Client, req *http.Request) ([]byte, error) {
	response, err := httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("%w: token request returned %d", ErrUnauthorized, retrieveErr.Response.StatusCode))
		}
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, classify(response.StatusCode, body)
	}
	return body, nil
}

// classify turns a non-200 response into a retryable or permanent error.
func classify(status int, body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || strings.Contains(bodyStr, "403"):
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, status))
	case status == http.StatusNotFound || status == http.StatusNoContent:
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrNoData, status))
	case status == http.StatusBadRequest:
		return backoff.Permanent(fmt.Errorf("bad request: %s", bodyStr))
	default:
		return fmt.Errorf("status %d: %s", status, bodyStr)
	}
}
