package core

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatUnknown Format = "unknown"
)

// Media types understood by the inference backend.
const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// AcceptedMediaTypes is the set the backend decoder reliably recognises.
var AcceptedMediaTypes = []string{MediaTypePNG, MediaTypeJPEG}

// IsAccepted reports whether mediaType is in AcceptedMediaTypes.
func IsAccepted(mediaType string) bool { return lo.Contains(AcceptedMediaTypes, mediaType) }

// MediaType returns the MIME type for f.
func (f Format) MediaType() string {
	switch f {
	case FormatJPEG:
		return MediaTypeJPEG
	case FormatPNG:
		return MediaTypePNG
	case FormatWebP:
		return "image/webp"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	}
	return "application/octet-stream"
}

// FormatFromMediaType maps MIME types to Format values.
func FormatFromMediaType(mt string) Format {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-ms-bmp":
		return FormatBMP
	}
	return FormatUnknown
}

// EncodedImage is a self-contained encoded image ready to be transmitted.
type EncodedImage struct {
	Data      []byte
	MediaType string
	FileName  string
}

// NewEncodedImage builds an EncodedImage whose file name is derived from base
// and the media type ("image" → "image.png" / "image.jpg").
func NewEncodedImage(data []byte, mediaType, base string) *EncodedImage {
	return &EncodedImage{Data: data, MediaType: mediaType, FileName: FileName(base, mediaType)}
}

// FileName returns base with the extension the backend expects for mediaType.
// Anything that is not PNG is labelled .jpg.
func FileName(base, mediaType string) string {
	if base == "" {
		base = "image"
	}
	if FormatFromMediaType(mediaType) == FormatPNG {
		return base + ".png"
	}
	return base + ".jpg"
}

// Format returns the codec implied by the media type.
func (e *EncodedImage) Format() Format { return FormatFromMediaType(e.MediaType) }

// IsPNG reports whether the image is labelled as PNG.
func (e *EncodedImage) IsPNG() bool { return e.Format() == FormatPNG }

// Size returns the encoded length in bytes.
func (e *EncodedImage) Size() int { return len(e.Data) }

// Rename returns a shallow copy carrying a file name derived from base.
func (e *EncodedImage) Rename(base string) *EncodedImage {
	out := *e
	out.FileName = FileName(base, e.MediaType)
	return &out
}

// Origin classifies where an image reference points.
type Origin int

const (
	// OriginRemote is an external URL (or no reference at all).
	OriginRemote Origin = iota
	// OriginEmbedded is a data: URL carrying the bytes inline.
	OriginEmbedded
	// OriginTransient is a blob: reference valid only inside this process.
	OriginTransient
)

func (o Origin) String() string {
	switch o {
	case OriginEmbedded:
		return "embedded-data"
	case OriginTransient:
		return "transient-reference"
	}
	return "remote-url"
}

// ClassifyRef derives the Origin of a reference string.
func ClassifyRef(ref string) Origin {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return OriginEmbedded
	case strings.HasPrefix(ref, "blob:"):
		return OriginTransient
	}
	return OriginRemote
}

// Source is an image handed to the adapter.  It is implemented only by
// *DecodedSource and *BlobSource.
type Source interface {
	Origin() Origin
	isSource()
}

// DecodedSource is an already-decoded image together with the reference it
// was loaded from.
type DecodedSource struct {
	Image image.Image

	// Natural dimensions; zero means "use Image.Bounds()".
	NaturalWidth  int
	NaturalHeight int

	// Ref is the reference the image was loaded from (data:, blob: or URL).
	Ref string

	// CrossOrigin marks pixels that came from another origin; drawing them
	// taints a surface.
	CrossOrigin bool
}

func (*DecodedSource) isSource() {}

// Origin is derived from Ref.
func (d *DecodedSource) Origin() Origin { return ClassifyRef(d.Ref) }

// Dimensions returns the natural size, falling back to the pixel bounds.
func (d *DecodedSource) Dimensions() (int, int) {
	w, h := d.NaturalWidth, d.NaturalHeight
	if d.Image != nil {
		b := d.Image.Bounds()
		if w == 0 {
			w = b.Dx()
		}
		if h == 0 {
			h = b.Dy()
		}
	}
	return w, h
}

// BlobSource is file-like raw bytes with a declared media type.
type BlobSource struct {
	Data      []byte
	MediaType string
	Name      string
	Kind      Origin
}

func (*BlobSource) isSource() {}

// Origin returns the declared origin marker.
func (b *BlobSource) Origin() Origin { return b.Kind }

// Strategy is one way of turning a Source into encoded bytes.  Strategies are
// tried in order until one succeeds.
type Strategy interface {
	Name() string
	Applies(src Source) bool
	Execute(ctx context.Context, src Source) (*EncodedImage, error)
}

// Hook is an optional observer invoked around normalization strategies.
type Hook interface {
	BeforeStrategy(ctx context.Context, name string, src Source)
	AfterStrategy(ctx context.Context, name string, out *EncodedImage, d time.Duration, err error)
}
