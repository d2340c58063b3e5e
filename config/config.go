package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvAPIURL           = "INPAINT_API_URL"
	EnvRequestTimeout   = "INPAINT_REQUEST_TIMEOUT"
	EnvMaxUploadSize    = "INPAINT_MAX_UPLOAD_SIZE"
	EnvJPEGQuality      = "INPAINT_JPEG_QUALITY"
	EnvMaskThreshold    = "INPAINT_MASK_THRESHOLD"
	EnvProgressInterval = "INPAINT_PROGRESS_INTERVAL"
	EnvProgressStep     = "INPAINT_PROGRESS_STEP"
	EnvProgressCap      = "INPAINT_PROGRESS_CAP"
	EnvLogLevel         = "INPAINT_LOG_LEVEL"
)

// DefaultAPIURL is the backend root used when none is configured.
const DefaultAPIURL = "http://localhost:8000"

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// APIURL is the single base URL for every backend endpoint.
	APIURL string

	// RequestTimeout bounds each HTTP call.  0 = rely on the caller's context.
	RequestTimeout time.Duration

	// MaxUploadBytes rejects larger normalized images before any network
	// call.  0 = no limit.
	MaxUploadBytes datasize.ByteSize

	// Re-encoding.
	JPEGQuality   int   // fallback JPEG quality; default 95
	MaskThreshold uint8 // mask binarization level; default 128

	// Synthetic upscale progress.
	Progress ProgressConfig

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// ProgressConfig controls the upscale progress estimator.
type ProgressConfig struct {
	Interval time.Duration // default 500ms
	Step     int           // default 10
	Cap      int           // default 90
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		APIURL:        DefaultAPIURL,
		JPEGQuality:   95,
		MaskThreshold: 128,
		Progress: ProgressConfig{
			Interval: 500 * time.Millisecond,
			Step:     10,
			Cap:      90,
		},
		LogLevel: "info",
	}
}

// Load starts from Default, applies a .env file if present and then the
// process environment.  Malformed values are reported, not ignored.
func Load() (Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from an arbitrary lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := get(EnvAPIURL); ok {
		c.APIURL = strings.TrimRight(v, "/")
	}
	duration(EnvRequestTimeout, &c.RequestTimeout)
	if v, ok := get(EnvMaxUploadSize); ok {
		size, err := datasize.ParseString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvMaxUploadSize, err))
		} else {
			c.MaxUploadBytes = size
		}
	}
	integer(EnvJPEGQuality, &c.JPEGQuality)
	if v, ok := get(EnvMaskThreshold); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvMaskThreshold, err))
		} else {
			c.MaskThreshold = uint8(n)
		}
	}
	duration(EnvProgressInterval, &c.Progress.Interval)
	integer(EnvProgressStep, &c.Progress.Step)
	integer(EnvProgressCap, &c.Progress.Cap)
	if v, ok := get(EnvLogLevel); ok {
		c.LogLevel = strings.ToLower(v)
	}

	if err := errors.Join(errs...); err != nil {
		return c, err
	}
	return c, Validate(c)
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.APIURL == "" {
		return errors.New("config: APIURL must be set")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("config: APIURL %q must be an http(s) URL", c.APIURL)
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: RequestTimeout must not be negative")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("config: JPEGQuality must be between 1 and 100")
	}
	if c.Progress.Interval <= 0 {
		return errors.New("config: Progress.Interval must be positive")
	}
	if c.Progress.Step <= 0 {
		return errors.New("config: Progress.Step must be positive")
	}
	if c.Progress.Cap < c.Progress.Step || c.Progress.Cap >= 100 {
		return errors.New("config: Progress.Cap must be at least Step and below 100")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}
