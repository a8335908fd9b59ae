// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Component wiring for CLI command handlers.
//
// Every handler works against an App: configuration loaded, storage opened,
// audit trail attached, and the gate assembled in front of the camera
// controller and intrusion tracker.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jeranaias/camguard/internal/audit"
	"github.com/jeranaias/camguard/internal/auth"
	"github.com/jeranaias/camguard/internal/camera"
	"github.com/jeranaias/camguard/internal/capture"
	"github.com/jeranaias/camguard/internal/config"
	"github.com/jeranaias/camguard/internal/gate"
	"github.com/jeranaias/camguard/internal/intrusion"
	"github.com/jeranaias/camguard/internal/notify"
	"github.com/jeranaias/camguard/internal/storage"
	"github.com/jeranaias/camguard/internal/tasks"
	"github.com/jeranaias/camguard/internal/util"
)

// sweeperInterval is how often the background sweeper checks for lapsed
// episodes while a command is running.
const sweeperInterval = 15 * time.Second

// App bundles the wired components behind the CLI handlers.
type App struct {
	Cfg      *config.Config
	Store    *storage.Store
	AuditLog *audit.Logger
	Auth     *auth.Manager

	Controller *camera.Controller
	Cache      *camera.StatusCache
	Capturer   *capture.Capturer
	Alerter    *notify.Alerter
	Queue      *tasks.Queue
	Runner     *tasks.Runner
	Tracker    *intrusion.Tracker
	Gate       *gate.Gate

	MediaDir string

	watcher   *camera.LockFileWatcher
	stopSweep func()
	cancel    context.CancelFunc
}

// NewApp loads configuration and wires every component. The caller must
// Close the returned App.
func NewApp(args Args) (*App, error) {
	var cfg *config.Config
	var err error
	if args.Config != "" {
		cfg, err = config.LoadFrom(args.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	mediaDir, err := cfg.ResolveMediaDir()
	if err != nil {
		return nil, err
	}
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	auditPath, err := cfg.ResolveAuditPath()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{Cfg: cfg, MediaDir: mediaDir, cancel: cancel}

	app.AuditLog, err = audit.NewLogger(auditPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	app.AuditLog.SetEnabled(cfg.Audit.Enabled)
	if cfg.Audit.MaxSizeMB > 0 {
		app.AuditLog.SetMaxSize(cfg.Audit.MaxSizeMB * 1024 * 1024)
	}

	app.Store, err = storage.Open(ctx, dbPath)
	if err != nil {
		app.AuditLog.Close()
		cancel()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	app.Auth = auth.NewManager(app.Store,
		auth.WithStrengthPolicy(auth.StrengthPolicy{
			MinLength:    cfg.Auth.MinPasswordLength,
			RequireUpper: cfg.Auth.RequireUpper,
			RequireLower: cfg.Auth.RequireLower,
			RequireDigit: cfg.Auth.RequireDigit,
		}),
		auth.WithSaltSize(cfg.Auth.SaltLength),
	)

	app.Controller = camera.NewController(
		camera.PlatformMechanisms(mediaDir),
		camera.WithAuditLogger(app.AuditLog),
		camera.WithStateFile(filepath.Join(mediaDir, "camera_block_state.json")),
	)
	app.Cache = camera.NewStatusCache(app.Controller, cfg.StatusCacheTTL())

	// External edits to the lock file (another camguard process, or manual
	// tampering) invalidate the cached state.
	if w, werr := camera.NewLockFileWatcher(app.Cache, mediaDir, 500*time.Millisecond); werr == nil {
		if werr = w.Watch(ctx); werr == nil {
			app.watcher = w
		} else {
			w.Close()
		}
	}
	// A failed watcher is not fatal: the cache falls back to TTL expiry.

	app.Capturer = capture.New(capture.Options{
		FFmpegPath:      cfg.Capture.FFmpegPath,
		Device:          cfg.Capture.Device,
		MediaDir:        mediaDir,
		VideoDuration:   cfg.VideoDuration(),
		StartupDeadline: time.Duration(cfg.Capture.StartupDeadlineMillis) * time.Millisecond,
	})

	var recipients []string
	if cfg.Alerts.To != "" {
		recipients = []string{cfg.Alerts.To}
	}
	app.Alerter = notify.New(notify.Options{
		Enabled:       cfg.Alerts.Enabled,
		Host:          cfg.Alerts.SMTPHost,
		Port:          cfg.Alerts.SMTPPort,
		Username:      cfg.Alerts.Username,
		Password:      cfg.Alerts.Password,
		From:          cfg.Alerts.From,
		To:            recipients,
		Timeout:       time.Duration(cfg.Alerts.TimeoutSecs) * time.Second,
		RatePerMinute: float64(cfg.Alerts.RatePerMinute),
		Burst:         cfg.Alerts.Burst,
	})

	app.Queue = tasks.NewQueue(50)
	app.Runner = tasks.NewRunner(app.Queue)
	app.Runner.Start()

	app.Tracker = intrusion.NewTracker(intrusion.Options{
		Window:           cfg.FailureWindow(),
		SuspectThreshold: cfg.Intrusion.SuspectThreshold,
		CaptureCap:       cfg.Intrusion.CaptureCap,
	}, app.Store, app.Capturer, app.Alerter, app.Queue,
		intrusion.WithAuditLogger(app.AuditLog))
	app.stopSweep = app.Tracker.StartSweeper(ctx, sweeperInterval)

	app.Gate = gate.New(app.Auth, app.Tracker, app.Controller, app.Store,
		gate.WithAuditLogger(app.AuditLog),
		gate.WithStatusCache(app.Cache),
		gate.WithTOTPRequired(cfg.Auth.TOTPRequired),
	)

	return app, nil
}

// Close tears the App down in reverse dependency order.
func (a *App) Close() {
	if a.stopSweep != nil {
		a.stopSweep()
	}
	if a.Runner != nil {
		a.Runner.Stop()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.AuditLog != nil {
		a.AuditLog.Close()
	}
}

// denyDirect records a failed attempt on a surface that authenticates
// outside the gate (password rotation, TOTP management). The caller gets the
// same sealed denial a gated attempt produces.
func (a *App) denyDirect(ctx context.Context, surface string) error {
	episodeID := a.Tracker.RecordFailure(ctx, surface)
	a.Store.RecordAttempt(ctx, storage.AttemptRecord{
		Surface:   surface,
		Granted:   false,
		EpisodeID: episodeID,
		SourceIP:  util.LocalIP(),
	})
	a.AuditLog.AuthAttempt(surface, episodeID, false, "")
	fmt.Println("Access denied.")
	a.settle(a.Cfg.VideoDuration() + 20*time.Second)
	return errAccessDenied
}

// grantDirect records a successful attempt on a non-gated surface.
func (a *App) grantDirect(ctx context.Context, surface string) {
	a.Tracker.RecordSuccess(ctx)
	a.Store.RecordAttempt(ctx, storage.AttemptRecord{
		Surface:  surface,
		Granted:  true,
		SourceIP: util.LocalIP(),
	})
	a.AuditLog.AuthAttempt(surface, "", true, "")
}

// settle gives queued evidence/alert tasks a moment to run before the
// process exits. Best effort: tasks that outlive the grace period are
// abandoned, matching the silent-response requirement.
func (a *App) settle(max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		if a.Queue.RunningCount() == 0 && len(a.Queue.Queued()) == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
