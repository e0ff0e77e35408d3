package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v72/github"
	"github.com/ocuroot/gitdrop/about"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the REST endpoint of the public hosted API.
const DefaultBaseURL = "https://api.github.com/"

var ErrMissingCredential = errors.New("a credential is required to call the remote API")

type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// WithBaseURL points the transport at another API root, such as an
// enterprise install or a local fakehub.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// Transport performs authenticated JSON calls against the remote API.
// It performs no retries and no rate limit backoff.
type Transport struct {
	client  *github.Client
	baseURL string
}

func New(token string, opts ...Option) (*Transport, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingCredential
	}

	o := options{
		baseURL:   DefaultBaseURL,
		userAgent: "gitdrop/" + about.Version,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", o.baseURL, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host are required", o.baseURL)
	}

	client := github.NewClient(o.httpClient).WithAuthToken(token)
	client.BaseURL = baseURL
	client.UserAgent = o.userAgent

	return &Transport{
		client:  client,
		baseURL: baseURL.String(),
	}, nil
}

func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Call sends a request with an optional JSON body and returns the raw JSON
// response. A nil result with a nil error means the remote answered with
// 204 No Content or an empty body.
func (t *Transport) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	path = strings.TrimPrefix(path, "/")

	req, err := t.client.NewRequest(method, path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}

	var raw json.RawMessage
	resp, err := t.client.Do(ctx, req, &raw)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("Transport.Call", trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.Int("http.status", status),
		))
	}

	if err != nil {
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			if len(accepted.Raw) == 0 {
				return nil, nil
			}
			return json.RawMessage(accepted.Raw), nil
		}

		remoteErr := asRemoteAPIError(method, path, err)
		if remoteErr != nil {
			log.Debug("Remote API call failed", "method", method, "path", path, "status", remoteErr.Status, "message", remoteErr.Message)
			return nil, remoteErr
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	log.Debug("Remote API call", "method", method, "path", path, "status", status)

	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// Do is Call followed by decoding the response into out. When the remote
// returned no payload out is left untouched.
func (t *Transport) Do(ctx context.Context, method, path string, body any, out any) error {
	raw, err := t.Call(ctx, method, path, body)
	if err != nil {
		return err
	}
	if raw == nil || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return nil
}
