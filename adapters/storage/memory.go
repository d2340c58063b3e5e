// Package storage provides ObjectStore implementations.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/utils"
)

// RefPrefix starts every reference handed out by Memory.
const RefPrefix = "blob:"

// Memory keeps encoded images in process memory under "blob:<uuid>"
// references.  References stay valid until revoked.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*core.EncodedImage
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*core.EncodedImage)}
}

// Create stores a copy of img and returns a fresh reference to it.
func (m *Memory) Create(img *core.EncodedImage) string {
	ref := RefPrefix + uuid.NewString()
	cp := &core.EncodedImage{
		Data:      utils.CloneBytes(img.Data),
		MediaType: img.MediaType,
		FileName:  img.FileName,
	}
	m.mu.Lock()
	m.objects[ref] = cp
	m.mu.Unlock()
	return ref
}

// Resolve returns the image behind ref.  Revoked or foreign references fail
// with ErrUnknownReference.
func (m *Memory) Resolve(ctx context.Context, ref string) (*core.EncodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "memory.resolve", err)
	}
	m.mu.RLock()
	img, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryStorage, "memory.resolve",
			fmt.Errorf("%w: %s", apperrors.ErrUnknownReference, ref))
	}
	out := *img
	return &out, nil
}

// Revoke releases ref.  Unknown references are ignored.
func (m *Memory) Revoke(ref string) {
	m.mu.Lock()
	delete(m.objects, ref)
	m.mu.Unlock()
}

// Len reports how many references are live.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ core.ObjectStore = (*Memory)(nil)
