package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Budget holds the per-session analysis cost limits for one mode.
type Budget struct {
	MaxFrames       int `json:"max_frames,omitempty"`
	MaxCalls        int `json:"max_calls,omitempty"`
	MaxInputTokens  int `json:"max_input_tokens,omitempty"`
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// Provider selects the understanding service: "openai" or "mock".
	Provider string `json:"provider,omitempty"`

	// Model is the vision-capable chat model name.
	Model string `json:"model,omitempty"`

	// APIKey authenticates against the understanding service.
	// Usually supplied through LENS_API_KEY or OPENAI_API_KEY instead of the file.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// RequestTimeoutMs bounds a single remote call.
	RequestTimeoutMs int `json:"request_timeout_ms,omitempty"`

	// FFmpegPath and FFprobePath default to binaries on PATH.
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`

	// OutputDir receives recorded artifacts. Defaults to <base>/recordings.
	OutputDir string `json:"output_dir,omitempty"`

	// Capture settings passed to the capture engine.
	CaptureFrameRate int    `json:"capture_frame_rate,omitempty"`
	Resolution       string `json:"resolution,omitempty"` // "WxH", empty keeps source size
	ShowCursor       *bool  `json:"show_cursor,omitempty"`
	CaptureAudio     bool   `json:"capture_audio,omitempty"`

	// MaxFrameWidth downsizes extracted stills before upload. 0 keeps source width.
	MaxFrameWidth int `json:"max_frame_width,omitempty"`

	// OverlayCommand is the companion process argv. Empty runs "<self> overlay".
	OverlayCommand []string `json:"overlay_command,omitempty"`

	// DisableOverlay skips the companion process entirely (timer-only recording).
	DisableOverlay bool `json:"disable_overlay,omitempty"`

	// OverlaySweepPattern matches leftover companion processes by command line.
	OverlaySweepPattern string `json:"overlay_sweep_pattern,omitempty"`

	// Timing bounds for the recording lifecycle.
	FirstFrameTimeoutMs int `json:"first_frame_timeout_ms,omitempty"`
	ErrorGraceMs        int `json:"error_grace_ms,omitempty"`
	SuccessGraceMs      int `json:"success_grace_ms,omitempty"`
	CancelGraceMs       int `json:"cancel_grace_ms,omitempty"`

	// Per-mode analysis budgets.
	DescribeBudget  Budget `json:"describe_budget"`
	AnimationBudget Budget `json:"animation_budget"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	showCursor := true
	return &Config{
		Provider:            "openai",
		Model:               "gpt-4o",
		RequestTimeoutMs:    120000,
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		CaptureFrameRate:    30,
		ShowCursor:          &showCursor,
		MaxFrameWidth:       1280,
		OverlaySweepPattern: "lens overlay",
		FirstFrameTimeoutMs: 5000,
		ErrorGraceMs:        2000,
		SuccessGraceMs:      1000,
		CancelGraceMs:       1500,
		DescribeBudget: Budget{
			MaxFrames:       60,
			MaxCalls:        12,
			MaxInputTokens:  250000,
			MaxOutputTokens: 24000,
		},
		AnimationBudget: Budget{
			MaxFrames:       80,
			MaxCalls:        24,
			MaxInputTokens:  400000,
			MaxOutputTokens: 48000,
		},
	}
}

// Load loads configuration from baseDir/config.json and applies env overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lens.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	finish(cfg, baseDir)
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.lens) and repo (.lens) directories.
// Repo config is found by walking upward from startDir to find the nearest .lens/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	finish(cfg, globalDir)
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .lens/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".lens", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FirstFrameTimeout returns the first-frame bound as a duration.
func (c *Config) FirstFrameTimeout() time.Duration {
	return time.Duration(c.FirstFrameTimeoutMs) * time.Millisecond
}

// ErrorGrace returns how long the error state stays visible.
func (c *Config) ErrorGrace() time.Duration {
	return time.Duration(c.ErrorGraceMs) * time.Millisecond
}

// SuccessGrace returns how long the success state stays visible.
func (c *Config) SuccessGrace() time.Duration {
	return time.Duration(c.SuccessGraceMs) * time.Millisecond
}

// CancelGrace returns how long the cancelled state stays visible.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceMs) * time.Millisecond
}

// RequestTimeout returns the per-call remote timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// CursorVisible reports whether the cursor is drawn into captures.
func (c *Config) CursorVisible() bool {
	return c.ShowCursor == nil || *c.ShowCursor
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// finish applies env overrides and derived defaults.
func finish(cfg *Config, baseDir string) {
	applyEnvOverrides(cfg)
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(baseDir, "recordings")
	} else {
		cfg.OutputDir = expandTilde(cfg.OutputDir)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.APIKey == "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("LENS_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("LENS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LENS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("LENS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Provider = pickString(overlay.Provider, base.Provider)
	result.Model = pickString(overlay.Model, base.Model)
	result.APIKey = pickString(overlay.APIKey, base.APIKey)
	result.BaseURL = pickString(overlay.BaseURL, base.BaseURL)
	result.FFmpegPath = pickString(overlay.FFmpegPath, base.FFmpegPath)
	result.FFprobePath = pickString(overlay.FFprobePath, base.FFprobePath)
	result.OutputDir = pickString(overlay.OutputDir, base.OutputDir)
	result.Resolution = pickString(overlay.Resolution, base.Resolution)
	result.OverlaySweepPattern = pickString(overlay.OverlaySweepPattern, base.OverlaySweepPattern)

	result.RequestTimeoutMs = pickInt(overlay.RequestTimeoutMs, base.RequestTimeoutMs)
	result.CaptureFrameRate = pickInt(overlay.CaptureFrameRate, base.CaptureFrameRate)
	result.MaxFrameWidth = pickInt(overlay.MaxFrameWidth, base.MaxFrameWidth)
	result.FirstFrameTimeoutMs = pickInt(overlay.FirstFrameTimeoutMs, base.FirstFrameTimeoutMs)
	result.ErrorGraceMs = pickInt(overlay.ErrorGraceMs, base.ErrorGraceMs)
	result.SuccessGraceMs = pickInt(overlay.SuccessGraceMs, base.SuccessGraceMs)
	result.CancelGraceMs = pickInt(overlay.CancelGraceMs, base.CancelGraceMs)

	result.DescribeBudget = mergeBudget(base.DescribeBudget, overlay.DescribeBudget)
	result.AnimationBudget = mergeBudget(base.AnimationBudget, overlay.AnimationBudget)

	// Pointer booleans: overlay wins when set
	result.ShowCursor = base.ShowCursor
	if overlay.ShowCursor != nil {
		result.ShowCursor = overlay.ShowCursor
	}

	// Booleans: overlay wins if true, else base
	result.CaptureAudio = base.CaptureAudio || overlay.CaptureAudio
	result.DisableOverlay = base.DisableOverlay || overlay.DisableOverlay

	// The overlay argv is replaced as a whole, never merged
	result.OverlayCommand = base.OverlayCommand
	if len(overlay.OverlayCommand) > 0 {
		result.OverlayCommand = overlay.OverlayCommand
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func mergeBudget(base, overlay Budget) Budget {
	return Budget{
		MaxFrames:       pickInt(overlay.MaxFrames, base.MaxFrames),
		MaxCalls:        pickInt(overlay.MaxCalls, base.MaxCalls),
		MaxInputTokens:  pickInt(overlay.MaxInputTokens, base.MaxInputTokens),
		MaxOutputTokens: pickInt(overlay.MaxOutputTokens, base.MaxOutputTokens),
	}
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
