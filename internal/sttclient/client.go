// Package sttclient talks to the remote speech-to-text subtitle service:
// lookups of prior results by content identifier and multipart uploads for
// transcription.
package sttclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

const (
	// DefaultTimeout bounds a whole request, upload and transcription included.
	DefaultTimeout = 30 * time.Minute
	maxErrorBody   = 64 << 10
	maxJSONBody    = 32 << 20
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Client is an HTTP client for the STT service.
type Client struct {
	base        string
	resolveBase string
	http        *http.Client
	log         *log.Helper
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithResolveBase sets the address relative references are resolved
// against. An empty base leaves references as returned.
func WithResolveBase(base string) Option {
	return func(c *Client) { c.resolveBase = strings.TrimRight(strings.TrimSpace(base), "/") }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = log.NewHelper(logger)
		}
	}
}

// New creates a Client for the service at base, e.g. "http://127.0.0.1:8000".
// The base also resolves relative references unless WithResolveBase is set.
func New(base string, opts ...Option) (*Client, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, errors.New("sttclient: base address is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("sttclient: parse base address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sttclient: base address must be http or https, got %q", base)
	}
	c := &Client{
		base:        base,
		resolveBase: base,
		http:        &http.Client{Timeout: DefaultTimeout},
		log:         log.NewHelper(log.DefaultLogger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveRef prefixes base onto references that start with "/". Absolute
// references, and every reference when base is empty, are returned as is.
func ResolveRef(base, ref string) string {
	base = strings.TrimRight(base, "/")
	if base == "" || !strings.HasPrefix(ref, "/") {
		return ref
	}
	return base + ref
}

// Ping checks GET /ping.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.base+"/ping", nil, "")
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if !success(resp.StatusCode) {
		return statusError("ping", resp)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("ping: service reported status %q", body.Status)
	}
	return nil
}

// Lookup fetches the stored result for id. The bool is false when the
// service has no record, which is not an error.
func (c *Client) Lookup(ctx context.Context, id string) (Record, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.base+"/media/"+url.PathEscape(id), nil, "")
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Record{}, false, nil
	}
	if !success(resp.StatusCode) {
		return Record{}, false, statusError("lookup", resp)
	}
	var wire mediaResponse
	if err := decodeJSON(resp.Body, &wire); err != nil {
		return Record{}, false, err
	}
	rec, err := wire.record(c.resolveBase)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Transcribe streams up as a multipart form to POST /transcribe.
func (c *Client) Transcribe(ctx context.Context, up Upload, opts Options) (*Result, error) {
	if up.Body == nil {
		return nil, errors.New("transcribe: upload body is required")
	}
	if opts.ModelProfile == "" {
		opts.ModelProfile = model.DefaultModelProfile
	}
	// The form is written through a pipe so large media never sits in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, up, opts))
	}()
	defer pr.Close()

	resp, err := c.do(ctx, http.MethodPost, c.base+"/transcribe", pr, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	defer resp.Body.Close()
	if !success(resp.StatusCode) {
		return nil, statusError("transcribe", resp)
	}
	var wire transcribeResponse
	if err := decodeJSON(resp.Body, &wire); err != nil {
		return nil, err
	}
	result, err := wire.result(c.resolveBase)
	if err != nil {
		return nil, err
	}
	c.log.WithContext(ctx).Infof("transcribed %s: %d segments (cache=%t)", opts.FileID, len(result.Segments), result.Cached)
	return result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.WithContext(ctx).Debugf("%s %s -> %d (%s, request_id=%s)", method, req.URL.Path, resp.StatusCode, time.Since(start), reqID)
	return resp, nil
}

func writeForm(mw *multipart.Writer, up Upload, opts Options) error {
	name := up.Name
	if name == "" {
		name = "video"
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, up.Body); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return err
		}
	}
	if err := mw.WriteField("model_size", string(opts.ModelProfile)); err != nil {
		return err
	}
	if opts.FileID != "" {
		if err := mw.WriteField("file_id", opts.FileID); err != nil {
			return err
		}
	}
	return mw.Close()
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(r, maxJSONBody)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
