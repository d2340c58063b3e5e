package decoder

import (
	"context"
	"fmt"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// Loader turns encoded bytes into a drawable using the registry's decoders.
// The sniffed format wins over the declared media type, since blobs are
// frequently mislabelled.
type Loader struct {
	Registry core.Registry
}

// NewLoader returns a Loader backed by reg.
func NewLoader(reg core.Registry) *Loader { return &Loader{Registry: reg} }

// RegisterDefaults installs the built-in decoders into reg.
func RegisterDefaults(reg core.Registry) {
	reg.RegisterDecoder(core.FormatPNG, NewPNG())
	reg.RegisterDecoder(core.FormatJPEG, NewJPEG())
	reg.RegisterDecoder(core.FormatWebP, NewWebP())
	reg.RegisterDecoder(core.FormatGIF, NewGIF())
	reg.RegisterDecoder(core.FormatBMP, NewBMP())
}

func (l *Loader) Load(ctx context.Context, img *core.EncodedImage) (*core.DecodedSource, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.load", apperrors.ErrEmptyInput)
	}

	format := core.Format(utils.DetectFormat(img.Data))
	if format == core.FormatUnknown {
		format = img.Format()
	}
	dec, ok := l.Registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.load",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}

	decoded, err := dec.Decode(ctx, utils.BytesReader(img.Data))
	if err != nil {
		return nil, err
	}
	b := decoded.Bounds()
	return &core.DecodedSource{
		Image:         decoded,
		NaturalWidth:  b.Dx(),
		NaturalHeight: b.Dy(),
	}, nil
}

var _ core.Loader = (*Loader)(nil)
