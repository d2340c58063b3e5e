package pipeline

import (
	"context"
	"fmt"

	"github.com/Skryldev/inpaint-adapter/codec"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/reencode"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// Strategy names, in default priority order.
const (
	StrategyDataURL   = "data-url"
	StrategyObjectURL = "object-url"
	StrategyRedraw    = "redraw"
	StrategyBlob      = "blob"
)

func decoded(src core.Source) (*core.DecodedSource, bool) {
	d, ok := src.(*core.DecodedSource)
	return d, ok && d != nil
}

// ── Embedded data ─────────────────────────────────────────────────────────────

// EmbeddedDataStrategy decodes a data: reference without touching pixels.
type EmbeddedDataStrategy struct{}

func (s *EmbeddedDataStrategy) Name() string { return StrategyDataURL }

func (s *EmbeddedDataStrategy) Applies(src core.Source) bool {
	d, ok := decoded(src)
	return ok && codec.IsDataURL(d.Ref)
}

func (s *EmbeddedDataStrategy) Execute(_ context.Context, src core.Source) (*core.EncodedImage, error) {
	d, _ := decoded(src)
	return codec.Decode(d.Ref)
}

// ── Object URL ────────────────────────────────────────────────────────────────

// ObjectURLStrategy re-reads the bytes behind a blob: reference.  It fails
// once the reference has been revoked.
type ObjectURLStrategy struct {
	Store core.ObjectStore
}

func (s *ObjectURLStrategy) Name() string { return StrategyObjectURL }

func (s *ObjectURLStrategy) Applies(src core.Source) bool {
	d, ok := decoded(src)
	return ok && s.Store != nil && d.Origin() == core.OriginTransient
}

func (s *ObjectURLStrategy) Execute(ctx context.Context, src core.Source) (*core.EncodedImage, error) {
	d, _ := decoded(src)
	img, err := s.Store.Resolve(ctx, d.Ref)
	if err != nil {
		return nil, err
	}
	return core.NewEncodedImage(img.Data, img.MediaType, "image"), nil
}

// ── Redraw ────────────────────────────────────────────────────────────────────

// RedrawStrategy paints the decoded pixels onto a surface and serialises them.
// It works for every decoded source, including remote ones.
type RedrawStrategy struct {
	Reencoder *reencode.Reencoder
}

func (s *RedrawStrategy) Name() string { return StrategyRedraw }

func (s *RedrawStrategy) Applies(src core.Source) bool {
	_, ok := decoded(src)
	return ok && s.Reencoder != nil
}

func (s *RedrawStrategy) Execute(ctx context.Context, src core.Source) (*core.EncodedImage, error) {
	d, _ := decoded(src)
	return s.Reencoder.Redraw(ctx, d)
}

// ── Blob ──────────────────────────────────────────────────────────────────────

// BlobStrategy uses file-like bytes as they are.  A missing media type is
// sniffed from the content.
type BlobStrategy struct{}

func (s *BlobStrategy) Name() string { return StrategyBlob }

func (s *BlobStrategy) Applies(src core.Source) bool {
	b, ok := src.(*core.BlobSource)
	return ok && b != nil
}

func (s *BlobStrategy) Execute(_ context.Context, src core.Source) (*core.EncodedImage, error) {
	b := src.(*core.BlobSource)
	if len(b.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: blob %q has no data", apperrors.ErrEmptyInput, b.Name))
	}
	mt := b.MediaType
	if mt == "" {
		mt = utils.SniffMediaType(b.Data)
	}
	return core.NewEncodedImage(b.Data, mt, "image"), nil
}

var (
	_ core.Strategy = (*EmbeddedDataStrategy)(nil)
	_ core.Strategy = (*ObjectURLStrategy)(nil)
	_ core.Strategy = (*RedrawStrategy)(nil)
	_ core.Strategy = (*BlobStrategy)(nil)
)
