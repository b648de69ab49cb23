// Package cli implements the packscan command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/packscan/internal/config"
	"github.com/matzehuels/packscan/pkg/buildinfo"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "packscan"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	cfgFile string
	verbose bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Packscan collects and classifies JavaScript repositories",
		Long: `Packscan searches GitHub for repositories whose package.json references a library,
downloads them, classifies them by framework and records lint and dependency
hygiene signals in a local SQLite database.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			return config.Init(c.cfgFile)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default .packscan.toml or .packscan.yaml)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.String("data-dir", "", "directory holding the database and local copies")
	_ = viper.BindPFlag("data_dir", flags.Lookup("data-dir"))

	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.categorizeCommand())
	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.runCommand())
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.statsCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
