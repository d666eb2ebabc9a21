package config

// Config holds app configuration
type Config struct {
	// OutputDir is where the extract command writes archive contents.
	OutputDir string `mapstructure:"output"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
