// Package reencode pushes decoded image content through a fixed encoding by
// painting it onto an off-screen surface.
package reencode

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/anthonynsimon/bild/segment"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultJPEGQuality   = 95
	DefaultMaskThreshold = 128
)

// Options tunes the re-encoder.
type Options struct {
	JPEGQuality   int   // fallback JPEG quality, 1-100
	MaskThreshold uint8 // luminance at or above which a mask pixel means "repair"
}

// Reencoder redraws images onto surfaces from a SurfaceFactory and serialises
// them as PNG, falling back to JPEG.
type Reencoder struct {
	surfaces core.SurfaceFactory
	loader   core.Loader
	logger   core.Logger
	opts     Options
}

// New returns a Reencoder.  A nil logger discards output.
func New(surfaces core.SurfaceFactory, loader core.Loader, logger core.Logger, opts Options) *Reencoder {
	if logger == nil {
		logger = core.NopLogger{}
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.MaskThreshold == 0 {
		opts.MaskThreshold = DefaultMaskThreshold
	}
	return &Reencoder{surfaces: surfaces, loader: loader, logger: logger, opts: opts}
}

// SetLoader replaces the loader used by ForcePNG and NormalizeMask.
func (r *Reencoder) SetLoader(l core.Loader) { r.loader = l }

// SetSurfaceFactory replaces the surface factory used by Redraw.
func (r *Reencoder) SetSurfaceFactory(f core.SurfaceFactory) { r.surfaces = f }

// SetLogger attaches a structured logger.
func (r *Reencoder) SetLogger(l core.Logger) { r.logger = l }

// Redraw paints src onto a surface of its natural size and serialises it.
// PNG is tried first; an error or an empty PNG triggers a JPEG attempt.
func (r *Reencoder) Redraw(ctx context.Context, src *core.DecodedSource) (*core.EncodedImage, error) {
	if src == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "redraw", apperrors.ErrEmptyInput)
	}
	w, h := src.Dimensions()
	if w == 0 || h == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "redraw",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, w, h))
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "redraw", err)
	}

	surface, err := r.surfaces.NewSurface(w, h)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "redraw.surface", err)
	}
	if err := surface.Draw(src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "redraw.draw", err)
	}

	// Only diagnostic: some runtimes still serialise a surface whose pixels
	// cannot be read back.
	if _, err := surface.ReadPixel(0, 0); err != nil {
		r.logger.Warn("redraw.cross_origin_probe", "ref", src.Ref, "error", err.Error())
	}

	data, err := surface.Serialize(ctx, core.FormatPNG, core.EncodeOptions{})
	if err == nil && len(data) > 0 {
		r.logger.Debug("redraw.png", "bytes", len(data), "width", w, "height", h)
		return core.NewEncodedImage(data, core.MediaTypePNG, "image"), nil
	}
	r.logger.Warn("redraw.png_failed", "error", errString(err), "fallback", "jpeg")

	data, err = surface.Serialize(ctx, core.FormatJPEG, core.EncodeOptions{Quality: r.opts.JPEGQuality})
	if err == nil && len(data) > 0 {
		r.logger.Debug("redraw.jpeg", "bytes", len(data), "quality", r.opts.JPEGQuality)
		return core.NewEncodedImage(data, core.MediaTypeJPEG, "image"), nil
	}
	cause := apperrors.ErrEncodingFailed
	if err != nil {
		cause = fmt.Errorf("%w: %v", apperrors.ErrEncodingFailed, err)
	}
	return nil, apperrors.New(apperrors.CategoryEncode, "redraw", cause)
}

// ForcePNG re-encodes img as PNG.  PNG input is returned untouched; on any
// failure, or when the redraw could only produce JPEG, the original is
// returned unchanged.  It never fails.
func (r *Reencoder) ForcePNG(ctx context.Context, img *core.EncodedImage) *core.EncodedImage {
	if img == nil || img.IsPNG() {
		return img
	}
	src, err := r.loader.Load(ctx, img)
	if err != nil {
		r.logger.Warn("force_png.load_failed", "media_type", img.MediaType, "error", err.Error())
		return img
	}
	out, err := r.Redraw(ctx, src)
	if err != nil {
		r.logger.Warn("force_png.redraw_failed", "media_type", img.MediaType, "error", err.Error())
		return img
	}
	if !out.IsPNG() {
		r.logger.Warn("force_png.kept_original", "media_type", img.MediaType, "redraw_media_type", out.MediaType)
		return img
	}
	r.logger.Debug("force_png.converted", "from", img.MediaType, "bytes_in", img.Size(), "bytes_out", out.Size())
	return out.Rename(baseName(img.FileName))
}

// NormalizeMask returns mask as a PNG named "mask.png".  Non-PNG masks are
// binarised first so lossy artefacts do not widen the repair region; if that
// fails ForcePNG is used.
func (r *Reencoder) NormalizeMask(ctx context.Context, mask *core.EncodedImage) *core.EncodedImage {
	if mask == nil {
		return nil
	}
	if mask.IsPNG() {
		return mask.Rename("mask")
	}

	src, err := r.loader.Load(ctx, mask)
	if err == nil {
		bin := segment.Threshold(src.Image, r.opts.MaskThreshold)
		var buf bytes.Buffer
		if err = png.Encode(&buf, bin); err == nil {
			r.logger.Debug("mask.binarized", "from", mask.MediaType, "threshold", r.opts.MaskThreshold)
			return core.NewEncodedImage(buf.Bytes(), core.MediaTypePNG, "mask")
		}
	}
	r.logger.Warn("mask.binarize_failed", "media_type", mask.MediaType, "error", err.Error())
	return r.ForcePNG(ctx, mask).Rename("mask")
}

func baseName(fileName string) string {
	for i := len(fileName) - 1; i >= 0; i-- {
		if fileName[i] == '.' {
			return fileName[:i]
		}
	}
	return fileName
}

func errString(err error) string {
	if err == nil {
		return "empty output"
	}
	return err.Error()
}
