package inpaintadapter

import (
	"github.com/Skryldev/inpaint-adapter/client"
	"github.com/Skryldev/inpaint-adapter/core"
	"github.com/Skryldev/inpaint-adapter/pipeline"
)

// Registry exposes the codec registry, e.g. to install the vips backend.
func (a *Adapter) Registry() *core.DefaultRegistry { return a.reg }

// Client exposes the underlying backend client.
func (a *Adapter) Client() *client.Client { return a.client }

// Strategies lists the normalization fallback order.
func (a *Adapter) Strategies() []string { return a.normalizer.Pipeline.Strategies() }

// Pipeline exposes the normalization cascade for custom strategies.
func (a *Adapter) Pipeline() *pipeline.Pipeline { return a.normalizer.Pipeline }

// SupportedFormats lists the formats that can be decoded for re-encoding.
func (a *Adapter) SupportedFormats() []core.Format { return a.reg.DecodableFormats() }
