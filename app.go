package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"switchtray/internal/config"
	"switchtray/internal/device"
	"switchtray/internal/lifecycle"
	"switchtray/internal/power"
)

type App struct {
	ctx   context.Context
	store *config.Store
	cfg   config.Settings

	agent *power.Agent
	coord *lifecycle.Coordinator

	// revokeEvents unsubscribes the host session-event watcher. Set during
	// startup, called exactly once by the coordinator.
	revokeEvents func()

	// configErr is non-empty when startup validation failed; the agent is
	// nil in that case and only the settings window and Quit work.
	configErr string

	degraded  atomic.Bool
	trayReady atomic.Bool
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	store, err := config.Open()
	if err != nil {
		runtime.LogErrorf(ctx, "Failed to open config store: %v", err)
		a.configErr = err.Error()
		a.setupTray()
		return
	}
	a.store = store
	a.cfg = store.Settings()

	if err := config.Validate(a.cfg); err != nil {
		runtime.LogErrorf(ctx, "Invalid configuration: %v", err)
		a.configErr = err.Error()
		a.setupTray()
		return
	}

	link, err := device.New(device.Driver(a.cfg.Driver))
	if err != nil {
		runtime.LogErrorf(ctx, "Invalid configuration: %v", err)
		a.configErr = err.Error()
		a.setupTray()
		return
	}

	a.agent = power.NewAgent(link, a.cfg.Address, a.cfg.Username, a.cfg.Password, power.Config{
		RetryAttempts: a.cfg.RetryAttempts,
		Backoff: power.Backoff{
			Base:         time.Duration(a.cfg.RetryDelayMs) * time.Millisecond,
			Max:          time.Duration(a.cfg.MaxRetryDelayMs) * time.Millisecond,
			FastAttempts: a.cfg.RetryAttempts,
		},
	}, a)

	a.coord = lifecycle.New(
		a.agent,
		time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second,
		func() {
			if a.revokeEvents != nil {
				a.revokeEvents()
			}
		},
		a.quit,
	)
	a.revokeEvents = watchSessionEvents(a.coord)

	a.agent.EnsureConnected()

	health := power.NewHealthCheck(a.agent, time.Duration(a.cfg.HealthCheckSeconds)*time.Second)
	go health.Start(ctx)

	a.setupTray()
}

func (a *App) shutdown(ctx context.Context) {
	if a.agent != nil {
		_ = a.agent.Close()
	}
}

func (a *App) quit() {
	a.teardownTray()
	runtime.Quit(a.ctx)
}

// --- Notifier (power core -> presentation) ---

func (a *App) PowerChanged(on bool) {
	a.degraded.Store(false)
	a.setTrayState(on, a.deviceTooltip(on))
	runtime.EventsEmit(a.ctx, "power:state", on)
}

func (a *App) ConnectionLost() {
	a.degraded.Store(true)
	a.setTrayTooltip(degradedTooltip)
	runtime.EventsEmit(a.ctx, "connection:state", false)
}

func (a *App) ConnectionRestored(on bool) {
	a.degraded.Store(false)
	a.setTrayState(on, a.deviceTooltip(on))
	runtime.EventsEmit(a.ctx, "connection:state", true)
}

func (a *App) StatusMessage(msg string) {
	runtime.LogWarningf(a.ctx, "Device status: %s", msg)
	runtime.EventsEmit(a.ctx, "status:message", msg)
}

func (a *App) deviceTooltip(on bool) string {
	_, nickname := a.agent.Device()
	if nickname == "" {
		nickname = "Smart switch"
	}
	state := "Off"
	if on {
		state = "On"
	}
	return fmt.Sprintf("%s: %s", nickname, state)
}

// --- Bound methods (settings window) ---

type StatusInfo struct {
	Status    string `json:"status"`
	On        bool   `json:"on"`
	Known     bool   `json:"known"`
	Model     string `json:"model"`
	Nickname  string `json:"nickname"`
	Degraded  bool   `json:"degraded"`
	ConfigErr string `json:"configError,omitempty"`
}

func (a *App) GetStatus() StatusInfo {
	if a.agent == nil {
		return StatusInfo{Status: power.StatusDisconnected.String(), ConfigErr: a.configErr}
	}
	on, known := a.agent.Desired()
	model, nickname := a.agent.Device()
	return StatusInfo{
		Status:   a.agent.Status().String(),
		On:       on,
		Known:    known,
		Model:    model,
		Nickname: nickname,
		Degraded: a.degraded.Load(),
	}
}

func (a *App) TurnOn() error {
	return a.command(func(ctx context.Context) error {
		return a.agent.TurnOn(ctx)
	})
}

func (a *App) TurnOff() error {
	return a.command(func(ctx context.Context) error {
		return a.agent.TurnOff(ctx)
	})
}

func (a *App) RefreshState() (bool, error) {
	if a.agent == nil {
		return false, fmt.Errorf("not configured: %s", a.configErr)
	}
	ctx, cancel := a.commandContext()
	defer cancel()
	return a.agent.Refresh(ctx)
}

func (a *App) command(op func(context.Context) error) error {
	if a.agent == nil {
		return fmt.Errorf("not configured: %s", a.configErr)
	}
	ctx, cancel := a.commandContext()
	defer cancel()
	if err := op(ctx); err != nil {
		if !power.IsTransient(err) {
			a.StatusMessage(err.Error())
		}
		return err
	}
	return nil
}

// commandContext leaves room for the in-command retry policy: ceiling
// attempts plus the waits between them.
func (a *App) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, 30*time.Second)
}

func (a *App) GetSettings() config.Settings {
	if a.store == nil {
		return config.Normalize(config.Settings{})
	}
	return a.store.Settings()
}

// UpdateSettings persists new settings. Connection settings are immutable
// for the running process; they take effect on next start.
func (a *App) UpdateSettings(settings config.Settings) error {
	if a.store == nil {
		return fmt.Errorf("config store unavailable")
	}
	settings = config.Normalize(settings)
	if err := config.Validate(settings); err != nil {
		return err
	}
	return a.store.SetSettings(settings)
}

func (a *App) Quit() {
	if a.coord != nil {
		a.coord.Exit()
		return
	}
	a.quit()
}
