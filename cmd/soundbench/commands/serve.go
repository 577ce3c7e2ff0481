package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soundbench/soundbench/internal/config"
	"github.com/soundbench/soundbench/internal/printer"
	"github.com/soundbench/soundbench/internal/session"
)

var (
	serveConfigPath string
	serveListen     string
	serveNoAudio    bool
	serveVerbose    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development session for the current project",
	Long: `Serve loads soundbench.yml, builds the project's module, and runs the
watch/rebuild/reload loop until interrupted. Connect the control surface
to the printed WebSocket address.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "soundbench.yml", "project config file")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override server listen address")
	serveCmd.Flags().BoolVar(&serveNoAudio, "no-audio", false, "disable the audio subsystem")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return printer.Error("Cannot load project config", err.Error(), []string{
			"Run serve from a directory containing soundbench.yml",
			"Point --config at the project's config file",
		})
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}
	if serveNoAudio {
		cfg.Audio.Enabled = false
	}
	if len(cfg.Build.ExtractCommand) == 0 {
		self, err := os.Executable()
		if err != nil {
			return printer.Error("Cannot locate the soundbench binary", err.Error(), nil)
		}
		cfg.Build.ExtractCommand = []string{self, "extract"}
	}

	log, err := buildLogger(serveVerbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := session.New(log, cfg)
	if err != nil {
		return printer.Error("Session failed to start", err.Error(), []string{
			"Check that every watch.paths entry exists",
			"Check that the listen address is free",
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Step("watching %v\n", cfg.Watch.Paths)
	if err := s.Run(ctx); err != nil {
		return printer.Error("Session failed", err.Error(), nil)
	}
	printer.Success("session stopped\n")
	return nil
}

// buildLogger writes structured logs to stderr so stdout stays free
// for command output.
func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
