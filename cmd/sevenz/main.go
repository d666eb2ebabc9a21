package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/okvist/sevenz"
	"github.com/okvist/sevenz/internal/config"
	"github.com/okvist/sevenz/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sevenz",
	Short: "List, test and extract 7z archives",
}

var listCmd = &cobra.Command{
	Use:   "list ARCHIVE",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  list,
}

var extractCmd = &cobra.Command{
	Use:   "extract ARCHIVE",
	Short: "Extract all entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  extractAll,
}

var testCmd = &cobra.Command{
	Use:   "test ARCHIVE",
	Short: "Verify archive checksums without writing any output",
	Args:  cobra.ExactArgs(1),
	RunE:  test,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	extractCmd.Flags().StringP("output", "o", ".", "directory to extract into")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("output", extractCmd.Flags().Lookup("output"))

	rootCmd.AddCommand(listCmd, extractCmd, testCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "sevenz"))
		}
		viper.AddConfigPath("/etc/sevenz")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("SEVENZ")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setup loads the config and opens the archive named on the command
// line.
func setup(args []string) (*sevenz.Archive, error) {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return nil, fmt.Errorf("could not set up logging: %w", err)
	}

	slog.Info("opening archive", "path", args[0])

	archive, err := sevenz.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	return archive, nil
}

func list(cmd *cobra.Command, args []string) error {
	archive, err := setup(args)
	if err != nil {
		return err
	}
	defer archive.Close()

	for _, entry := range archive.Entries() {
		kind := "file"
		switch {
		case entry.IsDirectory:
			kind = "dir"
		case entry.IsEmpty:
			kind = "empty"
		}
		fmt.Printf("%-5s %12d  %s\n", kind, entry.Size, entry.Name)
	}
	return nil
}

func extractAll(cmd *cobra.Command, args []string) error {
	archive, err := setup(args)
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := archive.ExtractAll(cfg.OutputDir); err != nil {
		slog.Error("extraction finished with errors", "error", err)
		return err
	}

	slog.Info("extraction complete", "output", cfg.OutputDir)
	return nil
}

func test(cmd *cobra.Command, args []string) error {
	archive, err := setup(args)
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := archive.Test(); err != nil {
		slog.Error("archive verification failed", "error", err)
		return err
	}

	slog.Info("archive verified")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
