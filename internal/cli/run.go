package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockpilot/internal/bootstrap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a voice session",
		Long:  "Plays a greeting, then streams the microphone to the assistant. Ctrl-C stops the session.",
		Run:   runSession,
	}
	RootCmd.AddCommand(cmd)
}

func runSession(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if cfg.Gemini.APIKey == "" {
		exitErr("load config", fmt.Errorf("GEMINI_API_KEY is not set"))
	}

	app, err := bootstrap.New(cfg, &consoleSink{})
	if err != nil {
		exitErr("start", err)
	}
	defer app.Close()

	if err := app.Controller.Start(cmd.Context()); err != nil {
		exitErr("start session", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	app.Controller.Stop()
}
