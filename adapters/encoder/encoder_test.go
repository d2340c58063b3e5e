package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/inpaint-adapter/adapters/encoder"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 180, 255
	}
	return img
}

func TestPNG_Encode(t *testing.T) {
	out, err := encoder.NewPNG().Encode(context.Background(), solid(5, 3), core.EncodeOptions{})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 3), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 180, A: 255}, color.NRGBAModel.Convert(img.At(2, 1)))
}

func TestJPEG_QualityFallsBackToDefault(t *testing.T) {
	enc := encoder.NewJPEG(0)
	assert.Equal(t, 95, enc.DefaultQuality)

	out, err := enc.Encode(context.Background(), solid(8, 8), core.EncodeOptions{Quality: 250})
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestEncode_OutputsAreIndependent(t *testing.T) {
	enc := encoder.NewPNG()
	a, err := enc.Encode(context.Background(), solid(2, 2), core.EncodeOptions{})
	require.NoError(t, err)
	snapshot := append([]byte(nil), a...)

	_, err = enc.Encode(context.Background(), solid(9, 9), core.EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshot, a)
}

func TestEncode_Errors(t *testing.T) {
	_, err := encoder.NewPNG().Encode(context.Background(), nil, core.EncodeOptions{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = encoder.NewJPEG(90).Encode(ctx, solid(1, 1), core.EncodeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
}
