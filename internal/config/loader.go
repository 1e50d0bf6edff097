package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ballotcount"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BALLOTCOUNT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on v.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from the search paths, environment variables and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from configFile, or from the search paths
// when configFile is empty.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation is LoadWithFile without the validation step.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// BALLOTCOUNT_RUN_WORKERS -> run.workers
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that AutomaticEnv can resolve it and
// Unmarshal sees nested environment overrides.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("poll", d.Poll)
	l.v.SetDefault("state_dir", d.StateDir)
	l.v.SetDefault("roster", d.Roster)

	l.v.SetDefault("input.recursive", d.Input.Recursive)
	l.v.SetDefault("input.include", d.Input.Include)
	l.v.SetDefault("input.exclude", d.Input.Exclude)
	l.v.SetDefault("input.pages", d.Input.Pages)

	l.v.SetDefault("layout.template", d.Layout.Template)
	l.v.SetDefault("layout.default", d.Layout.Default)
	l.v.SetDefault("layout.file", d.Layout.File)

	l.v.SetDefault("rectify.width", d.Rectify.Width)
	l.v.SetDefault("rectify.height", d.Rectify.Height)
	l.v.SetDefault("rectify.debug_dir", d.Rectify.DebugDir)

	l.v.SetDefault("markers.dictionary", d.Markers.Dictionary)

	l.v.SetDefault("extract.trim", d.Extract.Trim)
	l.v.SetDefault("extract.name_size", d.Extract.NameSize)
	l.v.SetDefault("extract.mark_size", d.Extract.MarkSize)
	l.v.SetDefault("extract.enhance_above", d.Extract.EnhanceAbove)
	l.v.SetDefault("extract.audit_dir", d.Extract.AuditDir)

	l.v.SetDefault("engines.text.languages", d.Engines.Text.Languages)
	l.v.SetDefault("engines.text.tessdata_dir", d.Engines.Text.TessdataDir)
	l.v.SetDefault("engines.text.page_seg_mode", d.Engines.Text.PageSegMode)
	l.v.SetDefault("engines.text.workers", d.Engines.Text.Workers)
	l.v.SetDefault("engines.text.disable_dicts", d.Engines.Text.DisableDicts)

	l.v.SetDefault("engines.mark.model_path", d.Engines.Mark.ModelPath)
	l.v.SetDefault("engines.mark.library_path", d.Engines.Mark.LibraryPath)
	l.v.SetDefault("engines.mark.input_size", d.Engines.Mark.InputSize)
	l.v.SetDefault("engines.mark.confidence", d.Engines.Mark.Confidence)
	l.v.SetDefault("engines.mark.iou", d.Engines.Mark.IoU)
	l.v.SetDefault("engines.mark.classes", d.Engines.Mark.Classes)
	l.v.SetDefault("engines.mark.mark_class", d.Engines.Mark.MarkClass)
	l.v.SetDefault("engines.mark.num_threads", d.Engines.Mark.NumThreads)
	l.v.SetDefault("engines.mark.gpu.use_gpu", d.Engines.Mark.GPU.UseGPU)
	l.v.SetDefault("engines.mark.gpu.device_id", d.Engines.Mark.GPU.DeviceID)
	l.v.SetDefault("engines.mark.gpu.mem_limit", d.Engines.Mark.GPU.GPUMemLimit)
	l.v.SetDefault("engines.mark.gpu.arena_extend_strategy", d.Engines.Mark.GPU.ArenaExtendStrategy)
	l.v.SetDefault("engines.mark.gpu.cudnn_conv_algo_search", d.Engines.Mark.GPU.CUDNNConvAlgoSearch)
	l.v.SetDefault("engines.mark.gpu.copy_in_default_stream", d.Engines.Mark.GPU.DoCopyInDefaultStream)
	l.v.SetDefault("engines.mark_score_table", d.Engines.MarkScoreTable)

	l.v.SetDefault("run.workers", d.Run.Workers)
	l.v.SetDefault("run.cell_concurrency", d.Run.CellConcurrency)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.records_csv", d.Output.RecordsCSV)
	l.v.SetDefault("output.metrics_file", d.Output.MetricsFile)
	l.v.SetDefault("output.tui", d.Output.TUI)
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "ballotcount"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ballotcount"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	return append(paths, "/etc/ballotcount")
}
