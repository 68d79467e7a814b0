package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vincent-petithory/dataurl"

	"banana3d/internal/config"
	"banana3d/internal/services"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	maxStatusBody      = 1 << 20
	maxAssetBody       = 512 << 20

	pathGenerateViews  = "/generate-views"
	pathGeneratedViews = "/generated-views"
	pathGenerateModel  = "/generate-model"

	sourceImageField = "source_image"
)

// HTTPDoer describes the HTTP client used by the generation client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the generation service HTTP API.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	maxAsset  int64
	http      HTTPDoer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(agent)
	}
}

// WithMaxAssetBytes caps the size of a downloaded view or model.
func WithMaxAssetBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAsset = n
		}
	}
}

// NewClient constructs a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userAgent: "banana3d",
		maxAsset:  maxAssetBody,
		http:      &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from the [service] section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return NewClient(config.Default().Service.BaseURL, opts...)
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithAPIKey(cfg.Service.APIKey),
		WithUserAgent(cfg.Service.UserAgent),
	}
	return NewClient(cfg.Service.BaseURL, append(base, opts...)...)
}

// BaseURL reports the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitViewGeneration uploads the source image and asks the service to
// produce the orthographic views.
func (c *Client) SubmitViewGeneration(ctx context.Context, img Image) error {
	const op = "submit view generation"
	if len(img.Data) == 0 {
		return services.Wrap(services.ErrValidation, "", op, "source image is empty", nil)
	}

	body, contentType, err := encodeSourceImage(img)
	if err != nil {
		return services.Wrap(services.ErrValidation, "", op, "encode source image", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathGenerateViews, body)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", op, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := readStatusError(resp, op)
		return services.Wrap(services.ErrSubmission, "", op, "service rejected the image", statusErr)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))
	return nil
}

type viewsResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Views   map[string]string `json:"views"`
	Error   string            `json:"error"`
}

// CheckViewGenerationStatus asks whether the views for the last submission
// are ready. Pending results carry no views.
func (c *Client) CheckViewGenerationStatus(ctx context.Context) (ViewStatus, error) {
	const op = "check view status"
	req, err := c.newRequest(ctx, http.MethodGet, pathGeneratedViews, nil)
	if err != nil {
		return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
		if err != nil {
			return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "read response", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return ViewStatus{}, nil
		}
		var payload viewsResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "decode response", err)
		}
		return ViewStatus{Message: payload.Message}, nil
	case http.StatusOK:
	default:
		return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "unexpected response", readStatusError(resp, op))
	}

	var payload viewsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&payload); err != nil {
		return ViewStatus{}, services.Wrap(services.ErrTransport, "", op, "decode response", err)
	}
	if !strings.EqualFold(payload.Status, "complete") {
		return ViewStatus{Message: payload.Message}, nil
	}

	views := make(map[ViewID]string, len(payload.Views))
	for raw, ref := range payload.Views {
		id, err := ParseViewID(raw)
		if err != nil {
			continue
		}
		if ref = strings.TrimSpace(ref); ref != "" {
			views[id] = ref
		}
	}
	return ViewStatus{Complete: true, Message: payload.Message, Views: views}, nil
}

type modelResponse struct {
	ModelURL string `json:"model_url"`
	Error    string `json:"error"`
}

// RequestModelGeneration asks the service to build a model from the
// generated views. The call blocks until the service produces the model
// reference.
func (c *Client) RequestModelGeneration(ctx context.Context) (ModelResult, error) {
	const op = "request model generation"
	req, err := c.newRequest(ctx, http.MethodGet, pathGenerateModel, nil)
	if err != nil {
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ModelResult{}, services.Wrap(services.ErrTimeout, "", op, "deadline exceeded", err)
		}
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusFailedDependency:
		statusErr := readStatusError(resp, op)
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "views have not been generated", statusErr)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "unexpected response", readStatusError(resp, op))
	}

	var payload modelResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&payload); err != nil {
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "decode response", err)
	}
	modelURL := strings.TrimSpace(payload.ModelURL)
	if modelURL == "" {
		return ModelResult{}, services.Wrap(services.ErrTransport, "", op, "response has no model_url", nil)
	}
	return ModelResult{URL: modelURL}, nil
}

// Resolve returns the bytes behind a reference handed out by the service.
// data: URLs are decoded locally; http and https URLs are downloaded.
func (c *Client) Resolve(ctx context.Context, ref string) (Asset, error) {
	const op = "resolve reference"
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		decoded, err := dataurl.DecodeString(ref)
		if err != nil {
			return Asset{}, services.Wrap(services.ErrTransport, "", op, "decode data url", err)
		}
		return Asset{MediaType: decoded.ContentType(), Data: decoded.Data}, nil
	}

	parsed, err := url.Parse(ref)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, fmt.Sprintf("unsupported reference %q", truncate(ref, 64)), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, "build request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, "download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, "download failed", readStatusError(resp, op))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAsset+1))
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, "read body", err)
	}
	if int64(len(data)) > c.maxAsset {
		return Asset{}, services.Wrap(services.ErrTransport, "", op, fmt.Sprintf("asset exceeds %d bytes", c.maxAsset), nil)
	}
	return Asset{MediaType: mediaTypeFor(resp.Header.Get("Content-Type"), parsed.Path, data), Data: data}, nil
}

// Ping checks that the service answers HTTP at all. Any response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, pathGeneratedViews, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "ping", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", "ping", c.baseURL, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))
	resp.Body.Close()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, errors.New("service base url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func encodeSourceImage(img Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	name := strings.TrimSpace(img.Name)
	if name == "" {
		name = "source"
	}
	mediaType := strings.TrimSpace(img.MediaType)
	if mediaType == "" {
		mediaType = http.DetectContentType(img.Data)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     sourceImageField,
		"filename": path.Base(name),
	}))
	header.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func readStatusError(resp *http.Response, op string) *StatusError {
	statusErr := &StatusError{Operation: op, Code: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil || len(body) == 0 {
		return statusErr
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			statusErr.Message = payload.Error
		case payload.Message != "":
			statusErr.Message = payload.Message
		}
		return statusErr
	}
	statusErr.Message = truncate(strings.TrimSpace(string(body)), 200)
	return statusErr
}

func mediaTypeFor(header, urlPath string, data []byte) string {
	if header != "" {
		if parsed, _, err := mime.ParseMediaType(header); err == nil && parsed != "application/octet-stream" {
			return parsed
		}
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return http.DetectContentType(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
