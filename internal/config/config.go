package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gifforge/internal/logging"

	"gopkg.in/yaml.v3"
)

// Limits holds every tunable bound of the conversion pipeline. None of these
// are hard-coded at call sites; deployments override them via a YAML file
// (GIFFORGE_CONFIG) or individual environment variables.
type Limits struct {
	// MaxSourceBytes is the maximum accepted source file size.
	MaxSourceBytes int64 `yaml:"maxSourceBytes"`

	// MaxSourceDuration is the maximum accepted source duration.
	MaxSourceDuration time.Duration `yaml:"maxSourceDuration"`

	// MaxOutputDimension caps the larger of output width/height.
	MaxOutputDimension int `yaml:"maxOutputDimension"`

	// WorkerCap bounds the encoder pool size.
	WorkerCap int `yaml:"workerCap"`

	// LargeJobFrames is the frame count above which the encoder pool
	// drops to at most two workers to favor memory over parallelism.
	LargeJobFrames int `yaml:"largeJobFrames"`

	// GlobalPaletteFrames is the frame count above which a single shared
	// color palette is used for the whole animation.
	GlobalPaletteFrames int `yaml:"globalPaletteFrames"`

	// DitherQuality is the quality level at or above which dithering is
	// applied during palette quantization.
	DitherQuality int `yaml:"ditherQuality"`

	// SkipBudgetRatio is the fraction of estimated frames that may be
	// skipped after seek failures before the job becomes fatal.
	SkipBudgetRatio float64 `yaml:"skipBudgetRatio"`

	// ProgressInterval is the minimum spacing between progress events
	// within a stage.
	ProgressInterval time.Duration `yaml:"progressInterval"`

	// TimeoutFloor is the minimum stall deadline for any job.
	TimeoutFloor time.Duration `yaml:"timeoutFloor"`

	// PerFrameTimeout is the worst-case encode budget per frame used when
	// computing the stall deadline.
	PerFrameTimeout time.Duration `yaml:"perFrameTimeout"`

	// TimeoutPad is the fixed buffer added to the stall deadline.
	TimeoutPad time.Duration `yaml:"timeoutPad"`

	// LargeSourceWarnBytes triggers a non-fatal "expect slower processing"
	// warning during validation.
	LargeSourceWarnBytes int64 `yaml:"largeSourceWarnBytes"`
}

// DefaultLimits returns the built-in limits. The size-based thresholds are
// tunable defaults, not load-bearing constants.
func DefaultLimits() Limits {
	return Limits{
		MaxSourceBytes:       500 << 20,
		MaxSourceDuration:    10 * time.Minute,
		MaxOutputDimension:   800,
		WorkerCap:            4,
		LargeJobFrames:       100,
		GlobalPaletteFrames:  50,
		DitherQuality:        60,
		SkipBudgetRatio:      0.05,
		ProgressInterval:     250 * time.Millisecond,
		TimeoutFloor:         2 * time.Minute,
		PerFrameTimeout:      5 * time.Second,
		TimeoutPad:           30 * time.Second,
		LargeSourceWarnBytes: 100 << 20,
	}
}

// Config holds the full application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listenAddr"`

	// WorkDir holds uploaded sources and temporary pipeline files.
	WorkDir string `yaml:"workDir"`

	// CacheDir holds the artifact cache database.
	CacheDir string `yaml:"cacheDir"`

	// LedgerDir holds the conversion outcome ledger.
	LedgerDir string `yaml:"ledgerDir"`

	Limits Limits `yaml:"limits"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by GIFFORGE_CONFIG, then individual environment variable overrides, in
// that order of precedence.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: ":8080",
		WorkDir:    os.TempDir(),
		CacheDir:   "./cache",
		LedgerDir:  "./ledger",
		Limits:     DefaultLimits(),
	}

	if path := os.Getenv("GIFFORGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		logging.Info("Loaded configuration from %s", path)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GIFFORGE_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GIFFORGE_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("GIFFORGE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("GIFFORGE_LEDGER_DIR"); v != "" {
		cfg.LedgerDir = v
	}
	if v := envInt64("GIFFORGE_MAX_SOURCE_BYTES"); v > 0 {
		cfg.Limits.MaxSourceBytes = v
	}
	if v := envInt("GIFFORGE_MAX_SOURCE_SECONDS"); v > 0 {
		cfg.Limits.MaxSourceDuration = time.Duration(v) * time.Second
	}
	if v := envInt("GIFFORGE_MAX_DIMENSION"); v > 0 {
		cfg.Limits.MaxOutputDimension = v
	}
	if v := envInt("GIFFORGE_WORKER_CAP"); v > 0 {
		cfg.Limits.WorkerCap = v
	}
}

func envInt(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}

func envInt64(name string) int64 {
	v, err := strconv.ParseInt(os.Getenv(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Config) validate() error {
	l := c.Limits
	if l.MaxSourceBytes <= 0 {
		return fmt.Errorf("maxSourceBytes must be positive, got %d", l.MaxSourceBytes)
	}
	if l.MaxSourceDuration <= 0 {
		return fmt.Errorf("maxSourceDuration must be positive, got %v", l.MaxSourceDuration)
	}
	if l.MaxOutputDimension < 2 {
		return fmt.Errorf("maxOutputDimension must be at least 2, got %d", l.MaxOutputDimension)
	}
	if l.WorkerCap < 1 {
		return fmt.Errorf("workerCap must be at least 1, got %d", l.WorkerCap)
	}
	if l.SkipBudgetRatio < 0 || l.SkipBudgetRatio > 1 {
		return fmt.Errorf("skipBudgetRatio must be in [0,1], got %f", l.SkipBudgetRatio)
	}
	return nil
}
