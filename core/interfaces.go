package core

import (
	"context"
	"image"
	"image/color"
	"io"
)

// Decoder converts an encoded stream into pixels.
// Implementations live in adapters/decoder/.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader) (image.Image, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises pixels to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-100; 0 = use encoder default
}

// Surface is an off-screen drawable, the equivalent of a canvas.
type Surface interface {
	Size() (width, height int)
	// Draw paints src scaled to the surface size.
	Draw(src *DecodedSource) error
	// ReadPixel fails with ErrTainted when cross-origin data was drawn.
	ReadPixel(x, y int) (color.Color, error)
	// Serialize may return an empty slice when the runtime refuses to export.
	Serialize(ctx context.Context, format Format, opts EncodeOptions) ([]byte, error)
}

// SurfaceFactory creates surfaces of a given size.
type SurfaceFactory interface {
	NewSurface(width, height int) (Surface, error)
}

// Loader decodes encoded bytes into a drawable image.
type Loader interface {
	Load(ctx context.Context, img *EncodedImage) (*DecodedSource, error)
}

// ObjectStore holds transient in-process object references ("blob:" URLs).
type ObjectStore interface {
	Create(img *EncodedImage) string
	Resolve(ctx context.Context, ref string) (*EncodedImage, error)
	Revoke(ref string)
}

// MetricsCollector receives performance observations.
type MetricsCollector interface {
	RecordProcessingTime(name string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordError(name string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}
