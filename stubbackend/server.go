// Package stubbackend is a small CPU-only stand-in for the GPU inference
// service.  It serves the same routes, headers and error shapes so the client
// side can be exercised end to end without a model.
package stubbackend

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/Skryldev/inpaint-adapter/core"
)

// Options configures the stub.
type Options struct {
	Device      string // reported device type; default "cpu"
	ModelLoaded bool
	Scale       int // upscale factor; default 4

	// UpscaleError, when set, makes /api/upscale fail with 500 and this
	// detail.
	UpscaleError string
	// Latency delays every image response.
	Latency time.Duration

	Logger core.Logger
}

// Part describes one multipart file part of a captured request.
type Part struct {
	FileName    string
	ContentType string
	Size        int
}

// Request is a captured POST.
type Request struct {
	Path  string
	Parts map[string]Part
}

// Server is the stub backend.
type Server struct {
	opts   Options
	engine *gin.Engine

	mu       sync.Mutex
	requests []Request
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Device == "" {
		opts.Device = "cpu"
	}
	if opts.Scale <= 0 {
		opts.Scale = 4
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}

	s := &Server{opts: opts, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/", s.handleRoot)
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/info", s.handleInfo)
	api.POST("/inpaint", s.handleInpaint)
	api.POST("/upscale", s.handleUpscale)
	return s
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// Requests returns the captured POSTs in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) device() gin.H { return gin.H{"type": s.opts.Device} }

// ── JSON routes ───────────────────────────────────────────────────────────────

func (s *Server) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"name":      "inpaint stub backend",
		"status":    "running",
		"device":    s.device(),
		"endpoints": gin.H{
			"inpaint": "/api/inpaint",
			"upscale": "/api/upscale",
			"info":    "/api/info",
			"health":  "/api/health",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": s.opts.ModelLoaded,
		"device":       s.device(),
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	if !s.opts.ModelLoaded {
		writeDetail(c, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"device": s.device(),
		"model": gin.H{
			"name":  "stub",
			"scale": s.opts.Scale,
		},
	})
}

// ── Image routes ──────────────────────────────────────────────────────────────

func (s *Server) handleInpaint(c *gin.Context) {
	s.capture(c)
	if !s.opts.ModelLoaded {
		writeDetail(c, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	start := time.Now()

	img, err := formImage(c, "image")
	if err != nil {
		writeDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	mask, err := formImage(c, "mask")
	if err != nil {
		writeDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	out := fillMasked(img, mask)
	b := out.Bounds()
	s.wait()
	c.Header("X-Process-Time", fmt.Sprintf("%.2f", time.Since(start).Seconds()))
	c.Header("X-Device", s.opts.Device)
	c.Header("X-Image-Size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
	writePNG(c, out)
}

func (s *Server) handleUpscale(c *gin.Context) {
	s.capture(c)
	if !s.opts.ModelLoaded {
		writeDetail(c, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		writeDetail(c, http.StatusBadRequest, "missing file part")
		return
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		writeDetail(c, http.StatusBadRequest, "file must be an image")
		return
	}
	if s.opts.UpscaleError != "" {
		s.wait()
		writeDetail(c, http.StatusInternalServerError, s.opts.UpscaleError)
		return
	}
	start := time.Now()

	img, err := formImage(c, "file")
	if err != nil {
		writeDetail(c, http.StatusInternalServerError, "processing failed: "+err.Error())
		return
	}
	b := img.Bounds()
	out := imaging.Resize(img, b.Dx()*s.opts.Scale, b.Dy()*s.opts.Scale, imaging.Lanczos)

	s.wait()
	c.Header("X-Process-Time", fmt.Sprintf("%.2f", time.Since(start).Seconds()))
	c.Header("X-Original-Size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
	c.Header("X-Output-Size", fmt.Sprintf("%dx%d", out.Bounds().Dx(), out.Bounds().Dy()))
	c.Header("X-Device", s.opts.Device)
	writePNG(c, out)
}

func (s *Server) wait() {
	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}
}

func (s *Server) capture(c *gin.Context) {
	req := Request{Path: c.Request.URL.Path, Parts: map[string]Part{}}
	if form, err := c.MultipartForm(); err == nil {
		for name, files := range form.File {
			if len(files) == 0 {
				continue
			}
			req.Parts[name] = Part{
				FileName:    files[0].Filename,
				ContentType: files[0].Header.Get("Content-Type"),
				Size:        int(files[0].Size),
			}
		}
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	s.opts.Logger.Debug("stub.request", "path", req.Path, "parts", lo.Keys(req.Parts))
}

// ── helpers ───────────────────────────────────────────────────────────────────

func formImage(c *gin.Context, field string) (image.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %s part", field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodePart(f)
}

func decodePart(f multipart.File) (image.Image, error) {
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	return img, nil
}

// fillMasked paints every pixel whose mask luminance is at least 128 with the
// mean colour of the unmasked pixels.
func fillMasked(img, mask image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	m := imaging.Resize(mask, b.Dx(), b.Dy(), imaging.NearestNeighbor)

	var sumR, sumG, sumB, n uint64
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if !masked(m, x, y) {
				c := out.NRGBAAt(x, y)
				sumR += uint64(c.R)
				sumG += uint64(c.G)
				sumB += uint64(c.B)
				n++
			}
		}
	}
	fill := color.NRGBA{A: 255}
	if n > 0 {
		fill = color.NRGBA{R: uint8(sumR / n), G: uint8(sumG / n), B: uint8(sumB / n), A: 255}
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if masked(m, x, y) {
				out.SetNRGBA(x, y, fill)
			}
		}
	}
	return out
}

func masked(m *image.NRGBA, x, y int) bool {
	return color.GrayModel.Convert(m.NRGBAAt(x, y)).(color.Gray).Y >= 128
}

func writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		writeDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func writeDetail(c *gin.Context, status int, detail string) {
	writeJSON(c, status, gin.H{"detail": detail})
}

func writeJSON(c *gin.Context, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json", body)
}
