// Package client talks to the remote inpainting / super-resolution backend.
//
// Every call is a single attempt; non-success statuses become
// *apperrors.RemoteError.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// Backend routes, relative to the base URL.
const (
	PathInpaint = "/api/inpaint"
	PathUpscale = "/api/upscale"
	PathHealth  = "/api/health"
	PathInfo    = "/api/info"
)

// Diagnostic response headers.
const (
	HeaderProcessTime  = "X-Process-Time"
	HeaderDevice       = "X-Device"
	HeaderImageSize    = "X-Image-Size"
	HeaderOriginalSize = "X-Original-Size"
	HeaderOutputSize   = "X-Output-Size"
)

// DefaultUpscaleError is reported when a failed upscale carries no detail.
const DefaultUpscaleError = "server processing failed"

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds each request; zero means only ctx applies.
	Timeout time.Duration
	Logger  core.Logger
}

// Client is safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger core.Logger
	base   string
}

// New returns a Client for opts.BaseURL.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = core.NopLogger{}
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetLogger(restyLogger{logger}).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetJSONMarshaler(sonic.Marshal)

	return &Client{http: rc, logger: logger, base: base}
}

// SetLogger replaces the logger, including the one resty reports through.
func (c *Client) SetLogger(l core.Logger) {
	if l == nil {
		l = core.NopLogger{}
	}
	c.logger = l
	c.http.SetLogger(restyLogger{l})
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.base }

// Diagnostics are informational headers attached to successful responses.
type Diagnostics struct {
	ProcessTime  string
	Device       string
	ImageSize    string
	OriginalSize string
	OutputSize   string
}

func diagnosticsFrom(h http.Header) Diagnostics {
	return Diagnostics{
		ProcessTime:  h.Get(HeaderProcessTime),
		Device:       h.Get(HeaderDevice),
		ImageSize:    h.Get(HeaderImageSize),
		OriginalSize: h.Get(HeaderOriginalSize),
		OutputSize:   h.Get(HeaderOutputSize),
	}
}

// Fields flattens the non-empty diagnostics into logger key/value pairs.
func (d Diagnostics) Fields() []interface{} {
	var f []interface{}
	add := func(k, v string) {
		if v != "" {
			f = append(f, k, v)
		}
	}
	add("process_time", d.ProcessTime)
	add("device", d.Device)
	add("image_size", d.ImageSize)
	add("original_size", d.OriginalSize)
	add("output_size", d.OutputSize)
	return f
}

// Response is a successful binary reply.
type Response struct {
	StatusCode  int
	Body        []byte
	MediaType   string
	Diagnostics Diagnostics
}

// Image returns the body as an EncodedImage named base.
func (r *Response) Image(base string) *core.EncodedImage {
	return core.NewEncodedImage(r.Body, r.MediaType, base)
}

// ── Inpaint ───────────────────────────────────────────────────────────────────

// Inpaint posts image and mask as multipart parts "image" and "mask".
func (c *Client) Inpaint(ctx context.Context, image, mask *core.EncodedImage) (*Response, error) {
	const op = "inpaint"
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFields(part("image", image), part("mask", mask)).
		Post(PathInpaint)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRemote, op, err)
	}
	if !resp.IsSuccess() {
		return nil, &apperrors.RemoteError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	out := c.binaryResponse(resp)
	c.logger.Info("inpaint.done", append([]interface{}{"bytes", len(out.Body)}, out.Diagnostics.Fields()...)...)
	return out, nil
}

// ── Upscale ───────────────────────────────────────────────────────────────────

// Upscale posts image as multipart part "file".  A failed response is
// reported with the server's "detail" message when one is present.
func (c *Client) Upscale(ctx context.Context, image *core.EncodedImage) (*Response, error) {
	const op = "upscale"
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFields(part("file", image)).
		Post(PathUpscale)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRemote, op, err)
	}
	if !resp.IsSuccess() {
		msg := detail(resp.Body())
		if msg == "" {
			msg = DefaultUpscaleError
		}
		return nil, &apperrors.RemoteError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String(), Message: msg}
	}
	out := c.binaryResponse(resp)
	c.logger.Info("upscale.done", append([]interface{}{"bytes", len(out.Body)}, out.Diagnostics.Fields()...)...)
	return out, nil
}

// ── Health / Info ─────────────────────────────────────────────────────────────

type healthReply struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      any    `json:"device,omitempty"`
}

// Health reports whether the backend is up with its model loaded.  It never
// fails: every problem is logged and reported as false.
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get(PathHealth)
	if err != nil {
		c.logger.Warn("health.request_failed", "error", err.Error())
		return false
	}
	if !resp.IsSuccess() {
		c.logger.Warn("health.bad_status", "status", resp.StatusCode())
		return false
	}
	var h healthReply
	if err := sonic.Unmarshal(resp.Body(), &h); err != nil {
		c.logger.Warn("health.decode_failed", "error", err.Error())
		return false
	}
	ok := h.Status == "healthy" && h.ModelLoaded
	c.logger.Debug("health.checked", "status", h.Status, "model_loaded", h.ModelLoaded, "device", h.Device, "healthy", ok)
	return ok
}

// Info returns the backend's info document decoded as generic JSON.
func (c *Client) Info(ctx context.Context) (any, error) {
	const op = "info"
	resp, err := c.http.R().SetContext(ctx).Get(PathInfo)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRemote, op, err)
	}
	if !resp.IsSuccess() {
		return nil, &apperrors.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
			Message:    detail(resp.Body()),
		}
	}
	var v any
	if err := sonic.Unmarshal(resp.Body(), &v); err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, op, fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err))
	}
	return v, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func part(name string, img *core.EncodedImage) *resty.MultipartField {
	return &resty.MultipartField{
		Param:       name,
		FileName:    img.FileName,
		ContentType: img.MediaType,
		Reader:      bytes.NewReader(img.Data),
	}
}

func (c *Client) binaryResponse(resp *resty.Response) *Response {
	body := resp.Body()
	mt := resp.Header().Get("Content-Type")
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.TrimSpace(strings.ToLower(mt))
	if !strings.HasPrefix(mt, "image/") {
		mt = utils.SniffMediaType(body)
		if mt == "" {
			mt = core.MediaTypePNG
		}
	}
	return &Response{
		StatusCode:  resp.StatusCode(),
		Body:        body,
		MediaType:   mt,
		Diagnostics: diagnosticsFrom(resp.Header()),
	}
}

// detail extracts the "detail" field of a JSON error body.
func detail(body []byte) string {
	var e struct {
		Detail any `json:"detail"`
	}
	if err := sonic.Unmarshal(body, &e); err != nil || e.Detail == nil {
		return ""
	}
	if s, ok := e.Detail.(string); ok {
		return s
	}
	b, err := sonic.Marshal(e.Detail)
	if err != nil {
		return ""
	}
	return string(b)
}

// restyLogger routes resty's internal messages to core.Logger.
type restyLogger struct{ l core.Logger }

func (r restyLogger) Errorf(format string, v ...interface{}) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...interface{})  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...interface{}) { r.l.Debug(fmt.Sprintf(format, v...)) }

var _ resty.Logger = restyLogger{}
