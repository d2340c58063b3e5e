// Package encoder serialises pixels to the formats the backend accepts.
package encoder

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// PNG is lossless; masks and redraws go through it.
type PNG struct {
	Compression png.CompressionLevel
}

func NewPNG() *PNG { return &PNG{Compression: png.DefaultCompression} }

func (p *PNG) CanEncode(f core.Format) bool { return f == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img image.Image, _ core.EncodeOptions) ([]byte, error) {
	enc := &png.Encoder{CompressionLevel: p.Compression}
	return encode(ctx, "png.encode", img, func(w io.Writer) error { return enc.Encode(w, img) })
}

// JPEG is the fallback when a surface cannot export PNG.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality is out of range
}

// NewJPEG returns a JPEG encoder; q <= 0 selects 95.
func NewJPEG(q int) *JPEG {
	if q <= 0 {
		q = 95
	}
	return &JPEG{DefaultQuality: q}
}

func (j *JPEG) CanEncode(f core.Format) bool { return f == core.FormatJPEG }

func (j *JPEG) Encode(ctx context.Context, img image.Image, opts core.EncodeOptions) ([]byte, error) {
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = j.DefaultQuality
	}
	return encode(ctx, "jpeg.encode", img, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	})
}

// encode runs fn against a pooled buffer and returns a copy of what it wrote.
func encode(ctx context.Context, op string, img image.Image, fn func(io.Writer) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	buf := utils.AcquireBuffer()
	defer utils.ReleaseBuffer(buf)
	if err := fn(buf); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return utils.CloneBytes(buf.Bytes()), nil
}

var (
	_ core.Encoder = (*PNG)(nil)
	_ core.Encoder = (*JPEG)(nil)
)
