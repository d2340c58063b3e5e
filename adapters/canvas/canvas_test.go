package canvas_test

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

	"github.com/Skryldev/inpaint-adapter/adapters/canvas"
	"github.com/Skryldev/inpaint-adapter/adapters/encoder"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

func newFactory() *canvas.Factory {
	reg := core.NewRegistry()
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(95))
	return canvas.NewFactory(reg)
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCanvas_DrawAndSerializePNG(t *testing.T) {
	s, err := newFactory().NewSurface(4, 3)
	require.NoError(t, err)

	red := color.RGBA{R: 255, A: 255}
	require.NoError(t, s.Draw(&core.DecodedSource{Image: solid(4, 3, red)}))

	px, err := s.ReadPixel(2, 1)
	require.NoError(t, err)
	r, g, b, a := px.RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, b, a})

	data, err := s.Serialize(context.Background(), core.FormatPNG, core.EncodeOptions{})
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), decoded.Bounds())
}

func TestCanvas_ScalesToSurfaceSize(t *testing.T) {
	s, err := newFactory().NewSurface(8, 8)
	require.NoError(t, err)
	require.NoError(t, s.Draw(&core.DecodedSource{Image: solid(2, 2, color.White)}))

	px, err := s.ReadPixel(7, 7)
	require.NoError(t, err)
	_, _, _, a := px.RGBA()
	assert.NotZero(t, a)
}

func TestCanvas_SerializeJPEG(t *testing.T) {
	s, err := newFactory().NewSurface(5, 5)
	require.NoError(t, err)
	require.NoError(t, s.Draw(&core.DecodedSource{Image: solid(5, 5, color.Black)}))

	data, err := s.Serialize(context.Background(), core.FormatJPEG, core.EncodeOptions{Quality: 95})
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func TestCanvas_CrossOriginTaintsPixelReads(t *testing.T) {
	s, err := newFactory().NewSurface(2, 2)
	require.NoError(t, err)
	require.NoError(t, s.Draw(&core.DecodedSource{Image: solid(2, 2, color.White), CrossOrigin: true}))

	_, err = s.ReadPixel(0, 0)
	assert.ErrorIs(t, err, apperrors.ErrTainted)

	data, err := s.Serialize(context.Background(), core.FormatPNG, core.EncodeOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestCanvas_RejectsZeroSize(t *testing.T) {
	_, err := newFactory().NewSurface(0, 10)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimensions)
}

func TestCanvas_UnsupportedSerializeFormat(t *testing.T) {
	s, err := newFactory().NewSurface(1, 1)
	require.NoError(t, err)
	_, err = s.Serialize(context.Background(), core.FormatWebP, core.EncodeOptions{})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}
