// Package inpaintadapter prepares images for a remote inpainting and
// super-resolution backend and turns its replies back into usable images.
package inpaintadapter

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/Skryldev/inpaint-adapter/adapters/canvas"
	"github.com/Skryldev/inpaint-adapter/adapters/decoder"
	"github.com/Skryldev/inpaint-adapter/adapters/encoder"
	"github.com/Skryldev/inpaint-adapter/adapters/storage"
	"github.com/Skryldev/inpaint-adapter/client"
	"github.com/Skryldev/inpaint-adapter/codec"
	"github.com/Skryldev/inpaint-adapter/config"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/hooks"
	"github.com/Skryldev/inpaint-adapter/pipeline"
	"github.com/Skryldev/inpaint-adapter/progress"
	"github.com/Skryldev/inpaint-adapter/reencode"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
)

// DefaultConfig returns the default configuration.
func DefaultConfig() config.Config { return config.Default() }

// Adapter is the primary entry point.  It is safe for concurrent use once
// configured; the Set*/Add*/Register* methods are meant for setup time.
type Adapter struct {
	cfg        config.Config
	reg        *core.DefaultRegistry
	store      *storage.Memory
	reencoder  *reencode.Reencoder
	normalizer *pipeline.Normalizer
	client     *client.Client

	logger  core.Logger
	metrics core.MetricsCollector

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a fully wired Adapter with the built-in codecs, the in-memory
// canvas and object store, and an HTTP client for cfg.APIURL.
func New(cfg config.Config) (*Adapter, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "adapter.new", err)
	}

	reg := core.NewRegistry()
	decoder.RegisterDefaults(reg)
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.JPEGQuality))

	store := storage.NewMemory()
	r := reencode.New(canvas.NewFactory(reg), decoder.NewLoader(reg), nil, reencode.Options{
		JPEGQuality:   cfg.JPEGQuality,
		MaskThreshold: cfg.MaskThreshold,
	})

	return &Adapter{
		cfg:        cfg,
		reg:        reg,
		store:      store,
		reencoder:  r,
		normalizer: pipeline.NewNormalizer(store, r),
		client:     client.New(client.Options{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout}),
		logger:     core.NopLogger{},
		metrics:    hooks.NewInMemoryMetrics(),
	}, nil
}

// SetLogger attaches a structured logger to every component.
func (a *Adapter) SetLogger(l core.Logger) {
	if l == nil {
		l = core.NopLogger{}
	}
	a.logger = l
	a.reencoder.SetLogger(l)
	a.normalizer.Pipeline.SetLogger(l)
	a.client.SetLogger(l)
}

// SetMetrics attaches a metrics collector.
func (a *Adapter) SetMetrics(m core.MetricsCollector) { a.metrics = m }

// AddHook registers an observer for normalization strategy events.
func (a *Adapter) AddHook(h core.Hook) { a.normalizer.Pipeline.AddHook(h) }

// SetLoader replaces how encoded bytes are decoded for re-encoding.
func (a *Adapter) SetLoader(l core.Loader) { a.reencoder.SetLoader(l) }

// SetSurfaceFactory replaces the off-screen surface implementation.
func (a *Adapter) SetSurfaceFactory(f core.SurfaceFactory) { a.reencoder.SetSurfaceFactory(f) }

// RegisterDecoder registers a custom decoder for the given format.
func (a *Adapter) RegisterDecoder(f core.Format, d core.Decoder) { a.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (a *Adapter) RegisterEncoder(f core.Format, e core.Encoder) { a.reg.RegisterEncoder(f, e) }

// Config returns the configuration the adapter was built with.
func (a *Adapter) Config() config.Config { return a.cfg }

// Stats returns lightweight call statistics.
func (a *Adapter) Stats() (processed, errors int64) {
	return a.processed.Load(), a.failed.Load()
}

// ── Normalization ─────────────────────────────────────────────────────────────

// Normalize turns src into encoded bytes the backend accepts.
func (a *Adapter) Normalize(ctx context.Context, src core.Source) (*core.EncodedImage, error) {
	start := time.Now()
	out, err := a.normalize(ctx, src)
	a.observe("normalize", start, out, err)
	return out, err
}

func (a *Adapter) normalize(ctx context.Context, src core.Source) (*core.EncodedImage, error) {
	out, err := a.normalizer.Normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	if limit := a.cfg.MaxUploadBytes.Bytes(); limit > 0 && uint64(out.Size()) > limit {
		return nil, apperrors.New(apperrors.CategoryInput, "normalize",
			fmt.Errorf("%w: %d bytes > %s", apperrors.ErrImageTooLarge, out.Size(), a.cfg.MaxUploadBytes.HumanReadable()))
	}
	return out, nil
}

// ── Inpaint ───────────────────────────────────────────────────────────────────

// InpaintResult is a repaired image.
type InpaintResult struct {
	// DataURL is the response body as "data:<type>;base64,...".
	DataURL     string
	Image       *core.EncodedImage
	Diagnostics client.Diagnostics
}

// Inpaint repairs the regions of src marked white in the mask data URL.
func (a *Adapter) Inpaint(ctx context.Context, src core.Source, maskDataURL string) (*InpaintResult, error) {
	start := time.Now()
	res, err := a.inpaint(ctx, src, maskDataURL)
	var out *core.EncodedImage
	if res != nil {
		out = res.Image
	}
	a.observe("inpaint", start, out, err)
	return res, err
}

func (a *Adapter) inpaint(ctx context.Context, src core.Source, maskDataURL string) (*InpaintResult, error) {
	img, err := a.normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	mask, err := codec.Decode(maskDataURL)
	if err != nil {
		return nil, err
	}
	mask = a.reencoder.NormalizeMask(ctx, mask)

	a.logger.Debug("inpaint.request",
		"image_type", img.MediaType, "image_bytes", img.Size(),
		"mask_type", mask.MediaType, "mask_bytes", mask.Size(),
	)
	resp, err := a.client.Inpaint(ctx, img, mask)
	if err != nil {
		a.logger.Error("inpaint.failed", "error", err.Error())
		return nil, err
	}

	out := resp.Image("image")
	return &InpaintResult{
		DataURL:     codec.EncodeImage(out),
		Image:       out,
		Diagnostics: resp.Diagnostics,
	}, nil
}

// ── Upscale ───────────────────────────────────────────────────────────────────

// Upscale enlarges src on the backend.  onProgress, if set, receives
// synthetic values up to the configured cap while the request runs and 100
// once it succeeds.  The result is a transient "blob:" reference; release it
// with Revoke.
func (a *Adapter) Upscale(ctx context.Context, src core.Source, onProgress func(int)) (string, error) {
	start := time.Now()
	ref, out, err := a.upscale(ctx, src, onProgress)
	a.observe("upscale", start, out, err)
	return ref, err
}

func (a *Adapter) upscale(ctx context.Context, src core.Source, onProgress func(int)) (string, *core.EncodedImage, error) {
	img, err := a.normalize(ctx, src)
	if err != nil {
		return "", nil, err
	}

	est := progress.Start(ctx, progress.Config{
		Interval: a.cfg.Progress.Interval,
		Step:     a.cfg.Progress.Step,
		Cap:      a.cfg.Progress.Cap,
	}, onProgress)
	defer est.Stop()

	resp, err := a.client.Upscale(ctx, img)
	if err != nil {
		a.logger.Error("upscale.failed", "error", err.Error())
		return "", nil, err
	}

	est.Stop()
	if onProgress != nil {
		onProgress(100)
	}
	out := resp.Image("upscaled")
	return a.store.Create(out), out, nil
}

// ── Health / Info ─────────────────────────────────────────────────────────────

// CheckHealth reports whether the backend is up with a model loaded.  It
// never fails.
func (a *Adapter) CheckHealth(ctx context.Context) bool { return a.client.Health(ctx) }

// GetInfo returns the backend's info document as generic JSON.
func (a *Adapter) GetInfo(ctx context.Context) (any, error) { return a.client.Info(ctx) }

// ── Object references ─────────────────────────────────────────────────────────

// CreateObjectURL stores img and returns a transient "blob:" reference to it.
func (a *Adapter) CreateObjectURL(img *core.EncodedImage) string { return a.store.Create(img) }

// Resolve returns the bytes behind a reference from CreateObjectURL or Upscale.
func (a *Adapter) Resolve(ctx context.Context, ref string) (*core.EncodedImage, error) {
	return a.store.Resolve(ctx, ref)
}

// Revoke releases a reference.  Unknown references are ignored.
func (a *Adapter) Revoke(ref string) { a.store.Revoke(ref) }

// ── helpers ───────────────────────────────────────────────────────────────────

func (a *Adapter) observe(op string, start time.Time, out *core.EncodedImage, err error) {
	a.metrics.RecordProcessingTime(op, time.Since(start))
	if err != nil {
		a.failed.Add(1)
		a.metrics.RecordError(op, string(hooks.CategoryOf(err)))
		return
	}
	a.processed.Add(1)
	if out != nil {
		a.metrics.RecordThroughput(int64(out.Size()))
	}
}

// ── Source constructors ───────────────────────────────────────────────────────

// FromImage wraps an already-decoded image.  ref is where it was loaded from:
// a data URL, a "blob:" reference or a remote URL.
func FromImage(img image.Image, ref string) *core.DecodedSource {
	return &core.DecodedSource{Image: img, Ref: ref, CrossOrigin: core.ClassifyRef(ref) == core.OriginRemote && ref != ""}
}

// FromBlob wraps file-like bytes.  An empty mediaType is sniffed later.
func FromBlob(data []byte, mediaType, name string) *core.BlobSource {
	return &core.BlobSource{Data: data, MediaType: mediaType, Name: name, Kind: core.OriginTransient}
}
