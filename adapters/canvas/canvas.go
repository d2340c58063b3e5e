// Package canvas provides the default in-memory Surface: an NRGBA buffer that
// images are painted onto and serialised through the codec registry.
package canvas

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

// Factory creates Canvas surfaces whose Serialize uses the given registry.
type Factory struct {
	Registry core.Registry
	// Resampler is used when the source must be scaled to the natural size.
	// Defaults to draw.BiLinear.
	Resampler xdraw.Interpolator
}

// NewFactory returns a Factory bound to reg.
func NewFactory(reg core.Registry) *Factory { return &Factory{Registry: reg} }

func (f *Factory) NewSurface(width, height int) (core.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "canvas.new",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, width, height))
	}
	sampler := f.Resampler
	if sampler == nil {
		sampler = xdraw.BiLinear
	}
	return &Canvas{
		img:      imaging.New(width, height, color.Transparent),
		registry: f.Registry,
		sampler:  sampler,
	}, nil
}

// Canvas is a transparent NRGBA surface.  Drawing a cross-origin source taints
// it: pixel reads are refused afterwards, serialisation is still allowed.
type Canvas struct {
	img      *image.NRGBA
	registry core.Registry
	sampler  xdraw.Interpolator
	tainted  bool
}

func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Draw paints src at the origin, scaled to the canvas size when its pixel
// bounds differ from the canvas.
func (c *Canvas) Draw(src *core.DecodedSource) error {
	if src == nil || src.Image == nil {
		return apperrors.New(apperrors.CategoryPipeline, "canvas.draw", apperrors.ErrEmptyInput)
	}
	sb := src.Image.Bounds()
	db := c.img.Bounds()
	if sb.Dx() == db.Dx() && sb.Dy() == db.Dy() {
		xdraw.Draw(c.img, db, src.Image, sb.Min, xdraw.Over)
	} else {
		c.sampler.Scale(c.img, db, src.Image, sb, xdraw.Over, nil)
	}
	if src.CrossOrigin {
		c.tainted = true
	}
	return nil
}

func (c *Canvas) ReadPixel(x, y int) (color.Color, error) {
	if c.tainted {
		return nil, apperrors.New(apperrors.CategoryPipeline, "canvas.read_pixel", apperrors.ErrTainted)
	}
	if !(image.Point{X: x, Y: y}).In(c.img.Bounds()) {
		return nil, apperrors.New(apperrors.CategoryInput, "canvas.read_pixel",
			fmt.Errorf("pixel (%d,%d) outside %v", x, y, c.img.Bounds()))
	}
	return c.img.NRGBAAt(x, y), nil
}

func (c *Canvas) Serialize(ctx context.Context, format core.Format, opts core.EncodeOptions) ([]byte, error) {
	enc, ok := c.registry.EncoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, "canvas.serialize",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	return enc.Encode(ctx, c.img, opts)
}

// Image exposes the backing buffer.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Tainted reports whether cross-origin pixels were drawn.
func (c *Canvas) Tainted() bool { return c.tainted }

var (
	_ core.SurfaceFactory = (*Factory)(nil)
	_ core.Surface        = (*Canvas)(nil)
)
