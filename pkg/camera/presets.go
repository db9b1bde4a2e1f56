package camera

// Preset names for common frame sizes.
const (
	PresetVGA  = "vga"
	PresetQVGA = "qvga"
	Preset720p = "720p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetVGA:  DefaultConfig(),
		PresetQVGA: QVGAConfig(),
		Preset720p: HD720Config(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetVGA, PresetQVGA, Preset720p}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// QVGAConfig returns 320x240, for slow hosts where inference dominates.
func QVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// HD720Config returns 1280x720.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}
