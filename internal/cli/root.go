// Package cli implements the trk command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	trkerrors "github.com/trkhq/trk/internal/errors"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trk",
	Short: "Track work and revert it safely",
	Long: `trk keeps a plan of tracks, phases and tasks, attributes every git
commit to the task that produced it, and can revert any unit of work as a
whole: it computes the exact commits to undo, refuses when later work would
conflict, and rolls plan state back alongside the repository.

Quick start:
  trk init                          Initialize trk in current repo
  trk start plan.yaml               Start a track from a plan document
  trk record P1/T1 <sha>            Attribute a commit to a task
  trk set P1/T1 done                Mark a task done
  trk revert TRK-001/P1             Undo a whole phase`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	if trkErr := trkerrors.AsTrkError(err); trkErr != nil {
		fmt.Fprintln(os.Stderr, trkErr.UserMessage())
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .trk/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newSetCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newRevertCmd())
	rootCmd.AddCommand(newReopenCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .trk directory
		viper.AddConfigPath(".trk")
		viper.AddConfigPath("$HOME/.trk")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TRK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	setupLogging()
}

// setupLogging points slog at stderr with a level derived from flags and
// config. Command output stays on stdout; logs never mix into it.
func setupLogging() {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		switch viper.GetString("log_level") {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
