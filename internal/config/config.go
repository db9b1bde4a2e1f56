// Package config loads presenced settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Zone modes.
const (
	ZoneDetect = "detect"
	ZoneFixed  = "fixed"
)

// Config is the full process configuration. Keys are the lowercase form of
// the environment variable that overrides them.
type Config struct {
	// Vision
	ModelKitchen   string   `mapstructure:"model_kitchen"`
	KitchenClasses []string `mapstructure:"kitchen_classes"`
	ModelSpec      string   `mapstructure:"model_spec"`
	SpecClasses    []string `mapstructure:"spec_classes"`
	DetectConf     float64  `mapstructure:"detect_conf"`
	SpecThreshold  float64  `mapstructure:"spec_threshold"`
	SpecEveryN     int      `mapstructure:"spec_every_n"`
	RulesPath      string   `mapstructure:"rules_path"`

	// Camera. CameraIndex < 0 tries indices 0 and 1.
	CameraIndex  int `mapstructure:"camera_index"`
	CameraWidth  int `mapstructure:"camera_width"`
	CameraHeight int `mapstructure:"camera_height"`
	// CameraPreset ("vga", "qvga", "720p") overrides the size when set.
	CameraPreset string `mapstructure:"camera_preset"`

	// Presence
	StableWindow         int     `mapstructure:"stable_window"`
	StableRequired       int     `mapstructure:"stable_required"`
	PresencePushInterval float64 `mapstructure:"presence_push_interval"`
	ZoneMode             string  `mapstructure:"zone_mode"`
	FixedZone            string  `mapstructure:"fixed_zone"`
	TargetZone           string  `mapstructure:"target_zone"`
	ElsewhereZone        string  `mapstructure:"elsewhere_zone"`
	AnnouncePresence     bool    `mapstructure:"announce_presence"`
	TrackedItem          string  `mapstructure:"tracked_item"`

	// Files
	PresenceJSONPath string `mapstructure:"presence_json_path"`
	LastSeenJSONPath string `mapstructure:"last_seen_json_path"`

	// HistoryDBPath is the SQLite event log. Empty disables it.
	HistoryDBPath string `mapstructure:"history_db_path"`

	// Status API
	APIHost   string `mapstructure:"api_host"`
	APIPort   int    `mapstructure:"api_port"`
	AccessLog bool   `mapstructure:"access_log"`
	Metrics   bool   `mapstructure:"metrics"`

	// Voice
	VoiceEnabled      bool    `mapstructure:"voice_enabled"`
	AssemblyAIAPIKey  string  `mapstructure:"assemblyai_api_key"`
	AudioBackend      string  `mapstructure:"audio_backend"`
	AudioDevice       string  `mapstructure:"audio_device"`
	WakeThreshold     float64 `mapstructure:"wake_threshold"`
	WakeRequired      int     `mapstructure:"wake_required"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key"`
	TTSVoice          string  `mapstructure:"tts_voice"`
	VoiceflowAPIKey   string  `mapstructure:"voiceflow_api_key"`
	VoiceflowURL      string  `mapstructure:"voiceflow_url"`
	SubMode           string  `mapstructure:"sub_mode"`
	TranslateLanguage string  `mapstructure:"translate_language"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"model_kitchen":   "models/kitchen.onnx",
	"kitchen_classes": []string{"Basin", "Fridge", "Kettle", "Pot", "Stove"},
	"model_spec":      "models/spectacles.onnx",
	"spec_classes":    []string{"spectacles"},
	"detect_conf":     0.25,
	"spec_threshold":  0.60,
	"spec_every_n":    3,
	"rules_path":      "",

	"camera_index":  -1,
	"camera_width":  640,
	"camera_height": 480,
	"camera_preset": "",

	"stable_window":          5,
	"stable_required":        3,
	"presence_push_interval": 15.0,
	"zone_mode":              ZoneDetect,
	"fixed_zone":             "Level 3 EE department",
	"target_zone":            "Kitchen",
	"elsewhere_zone":         "EE Department Level 3",
	"announce_presence":      false,
	"tracked_item":           "spectacles",

	"presence_json_path":  "presence.json",
	"last_seen_json_path": "last_seen.json",
	"history_db_path":     "history.db",

	"api_host":   "0.0.0.0",
	"api_port":   5000,
	"access_log": false,
	"metrics":    true,

	"voice_enabled":      true,
	"assemblyai_api_key": "",
	"audio_backend":      "auto",
	"audio_device":       "",
	"wake_threshold":     0.08,
	"wake_required":      4,
	"openai_api_key":     "",
	"tts_voice":          "shimmer",
	"voiceflow_api_key":  "",
	"voiceflow_url":      "",
	"sub_mode":           "voiceflow",
	"translate_language": "en",

	"log_level": "info",
}

// SetDefaults registers every key on v. AutomaticEnv only resolves keys
// viper already knows about, so this must run before Unmarshal.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration into a fresh viper instance. cfgFile may be
// empty, in which case presenced.yaml in the working directory is used if
// present.
func Load(cfgFile string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return LoadFrom(viper.New(), cfgFile)
}

// LoadFrom reads configuration using v.
func LoadFrom(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("presenced")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.StableWindow < 1 {
		errs = append(errs, fmt.Errorf("stable_window must be >= 1, got %d", c.StableWindow))
	}
	if c.StableRequired < 1 || c.StableRequired > c.StableWindow {
		errs = append(errs, fmt.Errorf("stable_required must be in [1, %d], got %d", c.StableWindow, c.StableRequired))
	}
	if c.SpecThreshold < 0 || c.SpecThreshold > 1 {
		errs = append(errs, fmt.Errorf("spec_threshold must be in [0,1], got %.2f", c.SpecThreshold))
	}
	if c.DetectConf < 0 || c.DetectConf > 1 {
		errs = append(errs, fmt.Errorf("detect_conf must be in [0,1], got %.2f", c.DetectConf))
	}
	if c.SpecEveryN < 1 {
		errs = append(errs, fmt.Errorf("spec_every_n must be >= 1, got %d", c.SpecEveryN))
	}
	if c.PresencePushInterval <= 0 {
		errs = append(errs, fmt.Errorf("presence_push_interval must be positive, got %v", c.PresencePushInterval))
	}
	switch c.ZoneMode {
	case ZoneDetect:
	case ZoneFixed:
		if c.FixedZone == "" {
			errs = append(errs, errors.New("fixed_zone is required when zone_mode is fixed"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid zone_mode %q (must be %s or %s)", c.ZoneMode, ZoneDetect, ZoneFixed))
	}
	if len(c.KitchenClasses) == 0 {
		errs = append(errs, errors.New("kitchen_classes must not be empty"))
	}
	if len(c.SpecClasses) == 0 {
		errs = append(errs, errors.New("spec_classes must not be empty"))
	}
	if c.PresenceJSONPath == "" || c.LastSeenJSONPath == "" {
		errs = append(errs, errors.New("presence_json_path and last_seen_json_path are required"))
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("api_port out of range: %d", c.APIPort))
	}
	if strings.TrimSpace(c.SubMode) == "" {
		errs = append(errs, errors.New("sub_mode must not be empty"))
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		errs = append(errs, fmt.Errorf("camera size must be positive, got %dx%d", c.CameraWidth, c.CameraHeight))
	}

	return errors.Join(errs...)
}

// PushInterval returns the presence heartbeat as a duration.
func (c *Config) PushInterval() time.Duration {
	return time.Duration(c.PresencePushInterval * float64(time.Second))
}

// Addr returns the status API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// FixedPlace returns the zone every record reports in fixed mode, or "".
func (c *Config) FixedPlace() string {
	if c.ZoneMode == ZoneFixed {
		return c.FixedZone
	}
	return ""
}

// VoiceReady reports whether the wake loop can run.
func (c *Config) VoiceReady() bool {
	return c.VoiceEnabled && c.AssemblyAIAPIKey != ""
}
