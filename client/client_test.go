package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/inpaint-adapter/client"
	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func newClient(t *testing.T, h http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return client.New(client.Options{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func img(name string) *core.EncodedImage {
	return core.NewEncodedImage(pngMagic, core.MediaTypePNG, name)
}

func TestInpaint_SendsTwoPartsAndReadsDiagnostics(t *testing.T) {
	parts := map[string]string{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, client.PathInpaint, r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		for name, files := range r.MultipartForm.File {
			parts[name] = files[0].Filename
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set(client.HeaderProcessTime, "0.42")
		w.Header().Set(client.HeaderDevice, "cuda")
		w.Header().Set(client.HeaderImageSize, "512x512")
		_, _ = w.Write(pngMagic)
	})

	resp, err := c.Inpaint(context.Background(), img("image"), img("mask"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"image": "image.png", "mask": "mask.png"}, parts)
	assert.Equal(t, core.MediaTypePNG, resp.MediaType)
	assert.Equal(t, pngMagic, resp.Body)
	assert.Equal(t, client.Diagnostics{ProcessTime: "0.42", Device: "cuda", ImageSize: "512x512"}, resp.Diagnostics)
}

func TestInpaint_NonSuccessIsRemoteError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad mask")
	})

	_, err := c.Inpaint(context.Background(), img("image"), img("mask"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemote)

	re, ok := apperrors.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Equal(t, "bad mask", re.Body)
	assert.Contains(t, re.Error(), "400")
}

func TestInpaint_SniffsMissingContentType(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(jpeg)
	})

	resp, err := c.Inpaint(context.Background(), img("image"), img("mask"))
	require.NoError(t, err)
	assert.Equal(t, core.MediaTypeJPEG, resp.MediaType)
	assert.Equal(t, "image.jpg", resp.Image("image").FileName)
}

func TestUpscale_UsesFilePart(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, client.PathUpscale, r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "image.png", hdr.Filename)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set(client.HeaderOriginalSize, "64x64")
		w.Header().Set(client.HeaderOutputSize, "256x256")
		_, _ = w.Write(pngMagic)
	})

	resp, err := c.Upscale(context.Background(), img("image"))
	require.NoError(t, err)
	assert.Equal(t, "64x64", resp.Diagnostics.OriginalSize)
	assert.Equal(t, "256x256", resp.Diagnostics.OutputSize)
}

func TestUpscale_ErrorDetail(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"oom"}`)
	})

	_, err := c.Upscale(context.Background(), img("image"))
	re, ok := apperrors.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, "oom", re.Message)
	assert.Equal(t, "upscale: oom", re.Error())
}

func TestUpscale_ErrorWithoutDetail(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>gateway</html>")
	})

	_, err := c.Upscale(context.Background(), img("image"))
	re, ok := apperrors.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, client.DefaultUpscaleError, re.Message)
	assert.Equal(t, http.StatusBadGateway, re.StatusCode)
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"healthy", 200, `{"status":"healthy","model_loaded":true,"device":"cpu"}`, true},
		{"model missing", 200, `{"status":"healthy","model_loaded":false}`, false},
		{"degraded", 200, `{"status":"starting","model_loaded":true}`, false},
		{"server error", 500, `{"status":"healthy","model_loaded":true}`, false},
		{"garbage", 200, `not json`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, client.PathHealth, r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			assert.Equal(t, tc.want, c.Health(context.Background()))
		})
	}
}

func TestHealth_UnreachableIsFalse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := client.New(client.Options{BaseURL: url, Timeout: time.Second})
	assert.False(t, c.Health(context.Background()))
}

func TestInfo(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, client.PathInfo, r.URL.Path)
		_, _ = io.WriteString(w, `{"model":"lama","scale":4,"devices":["cuda:0"]}`)
	})

	v, err := c.Info(context.Background())
	require.NoError(t, err)
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "lama", m["model"])
	assert.EqualValues(t, 4, m["scale"])
}

func TestInfo_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"detail":"Model not loaded"}`)
		})
		_, err := c.Info(context.Background())
		re, ok := apperrors.AsRemote(err)
		require.True(t, ok)
		assert.Equal(t, "Model not loaded", re.Message)
	})
	t.Run("decode", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{broken`)
		})
		_, err := c.Info(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
	})
}

func TestCancelledContext(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Upscale(ctx, img("image"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryRemote))
}
