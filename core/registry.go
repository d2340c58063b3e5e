package core

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// ── Registry ──────────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	encoders map[Format]Encoder
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[Format]Decoder),
		encoders: make(map[Format]Encoder),
	}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	r.decoders[f] = d
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	r.encoders[f] = e
	r.mu.Unlock()
}

// DecoderFor returns the decoder registered for f, or failing that the first
// registered decoder that claims it can handle f.
func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.decoders[f]; ok {
		return d, true
	}
	for _, key := range sortedKeys(r.decoders) {
		if d := r.decoders[key]; d.CanDecode(f) {
			return d, true
		}
	}
	return nil, false
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[f]
	r.mu.RUnlock()
	return e, ok
}

// DecodableFormats lists the formats with a registered decoder, sorted.
func (r *DefaultRegistry) DecodableFormats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.decoders)
}

func sortedKeys(m map[Format]Decoder) []Format {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
