package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRelay forwards documents to an upstream HTTP service and stores the
// response body as the result. It covers annotation services that expose
// their own HTTP endpoint (CoreNLP-style servers): nlpipe contributes the
// queueing and caching, the upstream does the work.
type HTTPRelay struct {
	name        string
	url         string
	contentType string
	client      *http.Client
}

// HTTPConfig describes one HTTP relay processor.
type HTTPConfig struct {
	// Name is the module name tasks are enqueued under.
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// URL is the upstream endpoint documents are POSTed to.
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	// ContentType set on upstream requests. Default: text/plain.
	ContentType string `mapstructure:"content_type" yaml:"content_type,omitempty"`

	// Timeout for upstream requests. Default: 10 minutes, since parse
	// jobs on long documents are genuinely slow.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// NewHTTPRelay creates an HTTP relay processor from its configuration.
func NewHTTPRelay(cfg HTTPConfig) (*HTTPRelay, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("http processor needs a name")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("http processor %q needs a url", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return &HTTPRelay{
		name:        cfg.Name,
		url:         cfg.URL,
		contentType: contentType,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the configured module name.
func (h *HTTPRelay) Name() string { return h.name }

// CheckStatus verifies the upstream service answers at all.
func (h *HTTPRelay) CheckStatus(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("module %s: upstream %s unreachable: %w", h.name, h.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Process POSTs the document upstream and returns the response body.
func (h *HTTPRelay) Process(ctx context.Context, id string, doc []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", h.contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", h.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream %s answered %d: %s", h.url, resp.StatusCode, snippet(body))
	}

	return body, nil
}

// Convert is not supported; relay results are opaque upstream payloads.
func (h *HTTPRelay) Convert(id string, result []byte, format string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s results to %q", ErrCannotConvert, h.name, format)
}

// snippet truncates an upstream error body to something loggable.
func snippet(b []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

var _ Processor = (*HTTPRelay)(nil)
