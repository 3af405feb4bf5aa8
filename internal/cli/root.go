package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/logger"
)

var (
	// Global flags
	cfgFile   string
	envFiles  []string
	serverURL string
	host      string
	port      int
	jsonOut   bool
	verbose   bool

	// Version info (set from main)
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "foodia",
	Short: "Food photo classifier with calorie estimates",
	Long: `Foodia trains a dish classifier on a folder of labelled food photos,
serves predictions over HTTP, and compares the estimated calories of a meal
with a budget for a fitness goal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL; overrides --host and --port")
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "server host")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 8501, "server port")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func SetVersion(v string) {
	Version = v
	rootCmd.Version = v
}

// GetServerURL returns --server, or a URL built from --host and --port.
func GetServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// loadConfig reads --config over the defaults. --verbose forces debug logs.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format)
}
