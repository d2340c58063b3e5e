package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
	// AutoRotate applies the EXIF orientation before pixels are exported.
	AutoRotate bool
}

// Backend is a libvips-powered Decoder and Loader.  It reads anything libvips
// can (HEIF, TIFF, AVIF, ...) and hands pixels to Go as image.Image.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(core.Format) bool { return true }

func (b *Backend) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	defer utils.ReleaseBuffer(buf)

	img, _, _, err := b.decode(ctx, buf.Bytes())
	return img, err
}

// ─── Loader ───────────────────────────────────────────────────────────────────

// Load decodes img with libvips.  Natural dimensions are the post-rotation
// size.
func (b *Backend) Load(ctx context.Context, img *core.EncodedImage) (*core.DecodedSource, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.load", apperrors.ErrEmptyInput)
	}
	pixels, w, h, err := b.decode(ctx, img.Data)
	if err != nil {
		return nil, err
	}
	return &core.DecodedSource{Image: pixels, NaturalWidth: w, NaturalHeight: h}, nil
}

func (b *Backend) decode(ctx context.Context, raw []byte) (image.Image, int, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, 0, 0, apperrors.New(apperrors.CategoryDecode, "vips.decode",
			fmt.Errorf("%w: %v", apperrors.ErrUnsupportedFormat, err))
	}
	defer ref.Close()

	if b.cfg.AutoRotate {
		if err := ref.AutoRotate(); err != nil {
			return nil, 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.auto_rotate", err)
		}
	}

	// PNG keeps alpha and is lossless, so it is the handover format.
	ep := govips.NewPngExportParams()
	ep.Compression = 0
	out, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.export", err)
	}
	pixels, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.handover", err)
	}
	return pixels, ref.Width(), ref.Height(), nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend routes decoding of the given formats (all known ones by
// default) through libvips.
func RegisterVipsBackend(reg core.Registry, b *Backend, formats ...core.Format) {
	if len(formats) == 0 {
		formats = []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF, core.FormatBMP, core.FormatUnknown}
	}
	for _, f := range formats {
		reg.RegisterDecoder(f, b)
	}
}

// compile-time interface checks
var (
	_ core.Decoder = (*Backend)(nil)
	_ core.Loader  = (*Backend)(nil)
)
