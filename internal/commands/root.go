// Package commands is the warpmeet command line.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpmeet/internal/config"
	"github.com/BioHazard786/Warpmeet/internal/logging"
	"github.com/BioHazard786/Warpmeet/internal/ui"
	"github.com/BioHazard786/Warpmeet/internal/version"
)

var (
	flagDomain    string
	flagServerURL string
	flagLogFile   string
)

var rootCmd = &cobra.Command{
	Use:     "warpmeet",
	Short:   "Group video calls from the terminal over WebRTC",
	Long:    `WarpMeet joins group video calls from the command line. Every participant holds a direct WebRTC connection to every other participant; the server only relays signaling.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the root command. It is called once by main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// setupLogging keeps the terminal for the call view: logs go to --log-file
// when given, otherwise only errors reach stderr.
func setupLogging() error {
	if flagLogFile == "" {
		logging.Init(slog.LevelError)
		return nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(f, slog.LevelInfo, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))
	return nil
}

func loadConfig(opts config.Options) (*config.Config, error) {
	opts.Domain = flagDomain
	opts.ServerURL = flagServerURL
	return config.Load(opts)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDomain, "domain", "", "signaling server host[:port] (env: DOMAIN)")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "full websocket URL, overrides --domain (env: SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file")
}
