package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	logFile *logging.Logger
	cfg     *config.Config
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the root command and closes the log file whether or not the
// command failed.
func execute(args []string) error {
	defer closeLog()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func closeLog() {
	if logFile != nil {
		logFile.Close()
	}
}

var rootCmd = &cobra.Command{
	Use:   "defectset",
	Short: "Mine git and JIRA history into defect-prediction datasets",
	Long: `defectset walks the tagged releases of a project, computes per-file
process metrics for each release and labels the files touched by bug fixes
as buggy in every release the bug affected.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		loadErr := err
		if err != nil {
			cfg = config.Default()
		}

		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			OutputFile: cfg.Logging.File,
			MaxSize:    int64(cfg.Logging.MaxSizeMB) * 1024 * 1024,
			MaxBackups: cfg.Logging.MaxBackups,
		}
		if verbose {
			logCfg.Level = "debug"
		}

		logFile, err = logging.New(logCfg)
		if err != nil {
			return err
		}
		logger = logFile.Logger

		if loadErr != nil {
			logger.WithError(loadErr).Warn("Failed to load config, using defaults")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .defectset/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set custom version template
	rootCmd.SetVersionTemplate(`defectset {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(splitsCmd)
	rootCmd.AddCommand(configCmd)
}
