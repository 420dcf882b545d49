package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Brownie44l1/fire-detect/internal/model"
	"github.com/Brownie44l1/fire-detect/internal/report"
)

// EnvPrefix prefixes every environment override, e.g. FIRECLS_MODEL_PATH.
const EnvPrefix = "FIRECLS"

type Config struct {
	Model  ModelConfig  `mapstructure:"model"`
	Image  ImageConfig  `mapstructure:"image"`
	Output OutputConfig `mapstructure:"output"`
	Log    LogConfig    `mapstructure:"log"`
}

type ModelConfig struct {
	Path          string   `mapstructure:"path"`
	MetadataPath  string   `mapstructure:"metadata_path"`
	Labels        []string `mapstructure:"labels"`
	InputName     string   `mapstructure:"input_name"`
	OutputName    string   `mapstructure:"output_name"`
	SharedLibrary string   `mapstructure:"shared_library"`
}

type ImageConfig struct {
	Path          string `mapstructure:"path"`
	Size          int    `mapstructure:"size"`
	Layout        string `mapstructure:"layout"`
	Interpolation string `mapstructure:"interpolation"`
}

type OutputConfig struct {
	Format   string          `mapstructure:"format"`
	Annotate string          `mapstructure:"annotate"`
	Statuses report.Statuses `mapstructure:"statuses"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// DefaultLabels are the classes of the fire detection model.
var DefaultLabels = []string{"Smoke", "fire_images", "non_fire_images"}

// Load reads configuration from v. When configPath is set the YAML file is
// read first; environment variables and any flags already bound to v take
// precedence over it.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Output.Statuses) == 0 {
		cfg.Output.Statuses = report.DefaultStatuses()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.path", "fire_cnn_model.onnx")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.labels", DefaultLabels)
	v.SetDefault("model.input_name", "")
	v.SetDefault("model.output_name", "")
	v.SetDefault("model.shared_library", "")

	v.SetDefault("image.path", "")
	v.SetDefault("image.size", 128)
	v.SetDefault("image.layout", "nhwc")
	v.SetDefault("image.interpolation", "nearest")

	v.SetDefault("output.format", "text")
	v.SetDefault("output.annotate", "")

	v.SetDefault("log.mode", "debug")
}

func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output.format %q (want text, json or yaml)", c.Output.Format)
	}
	if c.Output.Annotate != "" {
		if err := report.CheckAnnotatePath(c.Output.Annotate); err != nil {
			return fmt.Errorf("output.annotate: %w", err)
		}
	}
	if err := c.Output.Statuses.Validate(); err != nil {
		return fmt.Errorf("output.statuses: %w", err)
	}
	switch c.Log.Mode {
	case "debug", "release":
	default:
		return fmt.Errorf("unsupported log.mode %q (want debug or release)", c.Log.Mode)
	}
	return nil
}

// Metadata describes the model as configured. A metadata sidecar, when
// present, takes precedence over these values.
func (c *Config) Metadata() model.Metadata {
	return model.Metadata{
		Classes:       c.Model.Labels,
		ImageSize:     c.Image.Size,
		Layout:        c.Image.Layout,
		Interpolation: c.Image.Interpolation,
		InputName:     c.Model.InputName,
		OutputName:    c.Model.OutputName,
	}
}

// ResolveMetadata merges the sidecar named by model.metadata_path, if any,
// over the configured values and validates the result.
func (c *Config) ResolveMetadata() (model.Metadata, error) {
	meta := c.Metadata()
	if c.Model.MetadataPath != "" {
		sidecar, err := model.LoadMetadata(c.Model.MetadataPath)
		if err != nil {
			return model.Metadata{}, err
		}
		meta = sidecar.Merge(meta)
	}
	if err := meta.Validate(); err != nil {
		return model.Metadata{}, err
	}
	return meta, nil
}
