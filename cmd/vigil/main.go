package main

import (
	"fmt"
	"os"
	"runtime"

	"vigil/internal/config"
	"vigil/internal/version"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Keeps tree-sitter diagnostics current for open documents",
	Long: `vigil validates documents with tree-sitter grammars and query rules.
It runs as a language server, watches a directory, or checks files once.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to a TOML, YAML or JSON config file")
	rootCmd.PersistentFlags().String("logfile", "", "path to log file")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup configures logging and colors before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	runtime.GOMAXPROCS(4)

	verbosity, _ := cmd.Flags().GetCount("verbose")
	var path *string
	if logfile, _ := cmd.Flags().GetString("logfile"); logfile != "" {
		path = &logfile
	}
	commonlog.Configure(verbosity, path)

	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
	default:
		return fmt.Errorf("unknown color mode %q", mode)
	}
	return nil
}

// loadConfig reads --config, or returns the defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
