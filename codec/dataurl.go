// Package codec converts between data URLs and raw encoded image bytes.
package codec

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// DefaultMediaType is assumed when a data URL header names no type.
const DefaultMediaType = core.MediaTypePNG

var mediaTypePattern = regexp.MustCompile(`:(.*?);`)

// whitespace is stripped from base64 payloads before decoding.
var whitespace = strings.NewReplacer(" ", "", "\n", "", "\r", "", "\t", "")

// IsDataURL reports whether s looks like a data URL.
func IsDataURL(s string) bool { return strings.HasPrefix(s, "data:") }

// Decode splits dataURL at its first comma and decodes the payload in-process.
// The returned image is named "image.<ext>".
func Decode(dataURL string) (*core.EncodedImage, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, apperrors.New(apperrors.CategoryInput, "codec.decode",
			fmt.Errorf("%w: data URL has no ',' separator", apperrors.ErrMalformedInput))
	}

	mediaType := DefaultMediaType
	if m := mediaTypePattern.FindStringSubmatch(header); m != nil && m[1] != "" {
		mediaType = m[1]
	}

	var (
		data []byte
		err  error
	)
	if strings.Contains(header, ";base64") {
		data, err = decodeBase64(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "codec.decode",
			fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err))
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "codec.decode", apperrors.ErrEmptyInput)
	}

	return core.NewEncodedImage(data, mediaType, "image"), nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = whitespace.Replace(payload)
	if strings.HasSuffix(payload, "=") || len(payload)%4 == 0 {
		return base64.StdEncoding.DecodeString(payload)
	}
	return base64.RawStdEncoding.DecodeString(payload)
}

// Encode reads r to the end and returns a self-contained data URL.  The read
// honours ctx; any failure of the underlying reader is reported as ErrRead.
func Encode(ctx context.Context, r io.Reader, mediaType string) (string, error) {
	return EncodeLimited(ctx, r, mediaType, 0)
}

// EncodeLimited is Encode with an upper bound on the number of bytes read.
// max <= 0 means unlimited.
func EncodeLimited(ctx context.Context, r io.Reader, mediaType string, max int64) (string, error) {
	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: r, Max: max}, 0)
	if err != nil {
		return "", apperrors.New(apperrors.CategoryRead, "codec.encode",
			fmt.Errorf("%w: %v", apperrors.ErrRead, err))
	}
	defer utils.ReleaseBuffer(buf)
	return encode(buf.Bytes(), mediaType), nil
}

// EncodeImage renders bytes already in memory as a data URL.
func EncodeImage(img *core.EncodedImage) string {
	return encode(img.Data, img.MediaType)
}

func encode(data []byte, mediaType string) string {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mediaType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}
