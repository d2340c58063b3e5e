package reencode_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/inpaint-adapter/adapters/canvas"
	"github.com/Skryldev/inpaint-adapter/adapters/decoder"
	"github.com/Skryldev/inpaint-adapter/adapters/encoder"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/reencode"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func registry() *core.DefaultRegistry {
	reg := core.NewRegistry()
	decoder.RegisterDefaults(reg)
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(95))
	return reg
}

func newReencoder() *reencode.Reencoder {
	reg := registry()
	return reencode.New(canvas.NewFactory(reg), decoder.NewLoader(reg), nil, reencode.Options{})
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// stubSurface lets tests control what each serialisation returns.
type stubSurface struct {
	w, h      int
	pngOut    []byte
	pngErr    error
	jpegOut   []byte
	jpegErr   error
	readErr   error
	formats   []core.Format
	qualities []int
}

func (s *stubSurface) Size() (int, int)               { return s.w, s.h }
func (s *stubSurface) Draw(*core.DecodedSource) error { return nil }
func (s *stubSurface) ReadPixel(int, int) (color.Color, error) {
	return color.Black, s.readErr
}
func (s *stubSurface) Serialize(_ context.Context, f core.Format, o core.EncodeOptions) ([]byte, error) {
	s.formats = append(s.formats, f)
	s.qualities = append(s.qualities, o.Quality)
	if f == core.FormatPNG {
		return s.pngOut, s.pngErr
	}
	return s.jpegOut, s.jpegErr
}

type stubFactory struct{ s *stubSurface }

func (f stubFactory) NewSurface(w, h int) (core.Surface, error) {
	f.s.w, f.s.h = w, h
	return f.s, nil
}

type recordingLogger struct {
	core.NopLogger
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...interface{}) { l.warns = append(l.warns, msg) }

// ── Redraw ────────────────────────────────────────────────────────────────────

func TestRedraw_ProducesPNGOfNaturalSize(t *testing.T) {
	out, err := newReencoder().Redraw(context.Background(), &core.DecodedSource{Image: gradient(6, 4)})
	require.NoError(t, err)
	assert.Equal(t, core.MediaTypePNG, out.MediaType)
	assert.Equal(t, "image.png", out.FileName)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestRedraw_UsesNaturalDimensions(t *testing.T) {
	src := &core.DecodedSource{Image: gradient(3, 3), NaturalWidth: 9, NaturalHeight: 6}
	out, err := newReencoder().Redraw(context.Background(), src)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Width)
	assert.Equal(t, 6, cfg.Height)
}

func TestRedraw_ZeroDimensions(t *testing.T) {
	src := &core.DecodedSource{Image: image.NewNRGBA(image.Rect(0, 0, 0, 5))}
	_, err := newReencoder().Redraw(context.Background(), src)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimensions)
}

func TestRedraw_FallsBackToJPEGWhenPNGIsEmpty(t *testing.T) {
	surface := &stubSurface{jpegOut: []byte{0xff, 0xd8, 0xff}}
	r := reencode.New(stubFactory{surface}, nil, nil, reencode.Options{})

	out, err := r.Redraw(context.Background(), &core.DecodedSource{Image: gradient(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, core.MediaTypeJPEG, out.MediaType)
	assert.Equal(t, "image.jpg", out.FileName)
	assert.Equal(t, []core.Format{core.FormatPNG, core.FormatJPEG}, surface.formats)
	assert.Equal(t, 95, surface.qualities[1])
}

func TestRedraw_FallsBackToJPEGWhenPNGErrors(t *testing.T) {
	surface := &stubSurface{pngErr: errors.New("refused"), jpegOut: []byte{1}}
	r := reencode.New(stubFactory{surface}, nil, nil, reencode.Options{JPEGQuality: 70})

	out, err := r.Redraw(context.Background(), &core.DecodedSource{Image: gradient(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, core.MediaTypeJPEG, out.MediaType)
	assert.Equal(t, 70, surface.qualities[1])
}

func TestRedraw_EncodingFailed(t *testing.T) {
	surface := &stubSurface{}
	r := reencode.New(stubFactory{surface}, nil, nil, reencode.Options{})

	_, err := r.Redraw(context.Background(), &core.DecodedSource{Image: gradient(2, 2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEncodingFailed)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
}

func TestRedraw_TaintedProbeOnlyWarns(t *testing.T) {
	surface := &stubSurface{readErr: apperrors.ErrTainted, pngOut: []byte{1, 2}}
	log := &recordingLogger{}
	r := reencode.New(stubFactory{surface}, nil, log, reencode.Options{})

	out, err := r.Redraw(context.Background(), &core.DecodedSource{Image: gradient(2, 2), CrossOrigin: true})
	require.NoError(t, err)
	assert.Equal(t, core.MediaTypePNG, out.MediaType)
	assert.Contains(t, log.warns, "redraw.cross_origin_probe")
}

// ── ForcePNG ──────────────────────────────────────────────────────────────────

func TestForcePNG_ConvertsJPEG(t *testing.T) {
	in := core.NewEncodedImage(jpegBytes(t, gradient(5, 5)), core.MediaTypeJPEG, "image")
	out := newReencoder().ForcePNG(context.Background(), in)

	require.NotNil(t, out)
	assert.Equal(t, core.MediaTypePNG, out.MediaType)
	assert.Equal(t, "image.png", out.FileName)
	_, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
}

func TestForcePNG_Idempotent(t *testing.T) {
	r := newReencoder()
	in := core.NewEncodedImage(jpegBytes(t, gradient(5, 5)), core.MediaTypeJPEG, "image")

	once := r.ForcePNG(context.Background(), in)
	twice := r.ForcePNG(context.Background(), once)
	assert.Same(t, once, twice)
}

func TestForcePNG_KeepsOriginalOnFailure(t *testing.T) {
	in := core.NewEncodedImage([]byte("not an image"), "image/webp", "image")
	out := newReencoder().ForcePNG(context.Background(), in)
	assert.Same(t, in, out)
}

func TestForcePNG_KeepsOriginalWhenOnlyJPEGAvailable(t *testing.T) {
	reg := registry()
	surface := &stubSurface{jpegOut: []byte{0xff, 0xd8}}
	r := reencode.New(stubFactory{surface}, decoder.NewLoader(reg), nil, reencode.Options{})

	in := core.NewEncodedImage(jpegBytes(t, gradient(3, 3)), core.MediaTypeJPEG, "image")
	assert.Same(t, in, r.ForcePNG(context.Background(), in))
}

// ── NormalizeMask ─────────────────────────────────────────────────────────────

func TestNormalizeMask_PNGIsRenamed(t *testing.T) {
	in := core.NewEncodedImage([]byte{0x89, 'P', 'N', 'G'}, core.MediaTypePNG, "image")
	out := newReencoder().NormalizeMask(context.Background(), in)
	assert.Equal(t, "mask.png", out.FileName)
	assert.Equal(t, in.Data, out.Data)
}

func TestNormalizeMask_BinarizesJPEG(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 {
				src.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	in := core.NewEncodedImage(jpegBytes(t, src), core.MediaTypeJPEG, "mask")

	out := newReencoder().NormalizeMask(context.Background(), in)
	assert.Equal(t, core.MediaTypePNG, out.MediaType)
	assert.Equal(t, "mask.png", out.FileName)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			assert.Contains(t, []uint8{0, 255}, g)
		}
	}
}
