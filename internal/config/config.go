package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Upload   UploadConfig   `yaml:"upload"`
	Progress ProgressConfig `yaml:"progress"`
	Export   ExportConfig   `yaml:"export"`
}

type EngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// ProgressConfig tunes the synthetic progress ramp shown before the engine
// sends any real signal. Ceiling must stay below 100; only a completion
// message may report 100.
type ProgressConfig struct {
	Interval time.Duration `yaml:"interval"`
	Step     int           `yaml:"step"`
	Ceiling  int           `yaml:"ceiling"`
}

type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL: "http://127.0.0.1:5000",
			Timeout: 30 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes: 512 << 20,
		},
		Progress: ProgressConfig{
			Interval: 300 * time.Millisecond,
			Step:     15,
			Ceiling:  85,
		},
		Export: ExportConfig{
			OutputDir: "exports",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Progress.Ceiling >= 100 {
		cfg.Progress.Ceiling = 99
	}

	return cfg, nil
}
