// Package bootstrap assembles the application graph from configuration.
package bootstrap

import (
	"fmt"

	"stockpilot/internal/audio"
	"stockpilot/internal/config"
	"stockpilot/internal/dialogue"
	"stockpilot/internal/domain"
	"stockpilot/internal/inventory"
	"stockpilot/internal/ports"
	"stockpilot/internal/providers/gemini"
	"stockpilot/internal/usecase"
)

// App holds the wired application components and owns their shutdown.
type App struct {
	Config     config.Config
	Controller *usecase.SessionController
	Inventory  *inventory.Service
	Store      *inventory.SQLiteStore

	speaker *audio.FFPlaySpeaker
}

// New wires the full voice session engine: storage, inventory service,
// dialogue machine, audio in/out, and the Gemini live provider.
func New(cfg config.Config, events ports.EventSink) (*App, error) {
	store, err := inventory.NewSQLiteStore(cfg.Inventory.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory store: %w", err)
	}

	service := inventory.NewService(store, store)
	service.SetWarnHandler(func(err error) {
		events.SessionError(domain.ErrorCodeInventory, err.Error())
	})
	machine := dialogue.NewMachine(service, cfg.Inventory.UserID, cfg.Inventory.Categories)

	speaker := audio.NewFFPlaySpeaker(cfg.Audio.PlayerCommand, cfg.Audio.OutputSampleRate, cfg.Audio.Channels)
	scheduler := audio.NewScheduler(speaker, audio.SystemClock(), cfg.Audio.OutputSampleRate, cfg.Audio.Channels,
		func(err error) {
			events.SessionError(domain.ErrorCodePlayback, err.Error())
		})
	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)

	provider := gemini.NewProvider(gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		APIBaseURL: cfg.Gemini.APIBaseURL,
		Tools:      gemini.ToolDeclarations(),
	})
	greeter := gemini.NewGreeter(cfg.Gemini.APIKey, cfg.Gemini.TTSModel, cfg.Gemini.Voice)

	controller := usecase.NewSessionController(
		capture, provider, greeter, scheduler, machine, service, events,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.InputSampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Model:            cfg.Gemini.LiveModel,
			Greeting:         cfg.Session.Greeting,
			UserID:           cfg.Inventory.UserID,
			Categories:       cfg.Inventory.Categories,
			FrameSize:        cfg.Session.FrameSize,
			InputSampleRate:  cfg.Audio.InputSampleRate,
			OutputSampleRate: cfg.Audio.OutputSampleRate,
		},
	)

	return &App{
		Config:     cfg,
		Controller: controller,
		Inventory:  service,
		Store:      store,
		speaker:    speaker,
	}, nil
}

// Close releases the application's long-lived resources.
func (a *App) Close() error {
	a.Controller.Stop()
	_ = a.speaker.Close()
	return a.Store.Close()
}
