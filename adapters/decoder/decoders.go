// Package decoder provides format-specific image decoders and a Loader that
// picks one by sniffing the encoded bytes.
package decoder

import (
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

// Codec adapts a plain decode function to core.Decoder for one format.
type Codec struct {
	Format core.Format
	decode func(io.Reader) (image.Image, error)
}

// NewCodec wraps fn as the decoder for f.
func NewCodec(f core.Format, fn func(io.Reader) (image.Image, error)) *Codec {
	return &Codec{Format: f, decode: fn}
}

func NewPNG() *Codec  { return NewCodec(core.FormatPNG, png.Decode) }
func NewJPEG() *Codec { return NewCodec(core.FormatJPEG, jpeg.Decode) }

// NewGIF decodes the first frame only.
func NewGIF() *Codec { return NewCodec(core.FormatGIF, gif.Decode) }

// NewWebP handles lossy and simple lossless stills.  Animated WebP needs the
// libvips loader.
func NewWebP() *Codec { return NewCodec(core.FormatWebP, webp.Decode) }

func NewBMP() *Codec { return NewCodec(core.FormatBMP, bmp.Decode) }

func (c *Codec) CanDecode(f core.Format) bool { return f == c.Format }

func (c *Codec) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	op := string(c.Format) + ".decode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	img, err := c.decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return img, nil
}

var _ core.Decoder = (*Codec)(nil)
