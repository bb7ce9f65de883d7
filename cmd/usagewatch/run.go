package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/j-veylop/usagewatch/internal/config"
	"github.com/j-veylop/usagewatch/internal/db"
	"github.com/j-veylop/usagewatch/internal/logger"
	"github.com/j-veylop/usagewatch/internal/notify"
	"github.com/j-veylop/usagewatch/internal/services/coordinator"
	"github.com/j-veylop/usagewatch/internal/services/profiles"
)

// NewRunCommand builds the `run` command: start polling every profile and
// block until interrupted.
func NewRunCommand() *cobra.Command {
	var desktop bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the refresh coordinator and watch the profiles file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(desktop)
		},
	}
	cmd.Flags().BoolVar(&desktop, "desktop-notifications", true, "deliver alerts through the OS notification center instead of the log")
	return cmd
}

func runDaemon(desktop bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logger.Warn("error closing database", "error", closeErr)
		}
	}()

	store, err := profiles.New(cfg.ProfilesPath)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("error closing profile store", "error", closeErr)
		}
	}()

	var sink coordinator.NotificationSink = notify.LogSink{}
	if desktop {
		sink = notify.DesktopSink{}
	}

	coord := coordinator.New(newFileFetcher(), store, database, sink, coordinator.Config{
		FetchTimeout:    cfg.FetchTimeout,
		DefaultInterval: cfg.RefreshInterval,
		DegradedAfter:   cfg.DegradedAfter,
		AutoRotate:      cfg.AutoRotate,
	})
	coord.Start()
	defer func() { _ = coord.Close() }()

	logger.Info("usagewatch started",
		"profiles", store.Count(),
		"database", database.Path(),
		"interval", cfg.RefreshInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	events := coord.Subscribe()
	storeEvents := store.Events()

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			return nil
		case storeEvent := <-storeEvents:
			switch storeEvent.Type {
			case profiles.EventProfilesChanged, profiles.EventProfileUpdated, profiles.EventActiveProfileChanged:
				coord.Reconcile()
			case profiles.EventError:
				logger.Error("profile store error", "error", storeEvent.Error)
			}
		case event, ok := <-events:
			if !ok {
				return nil
			}
			logCoordinatorEvent(event)
		}
	}
}

func logCoordinatorEvent(event coordinator.Event) {
	switch e := event.(type) {
	case coordinator.ReadingUpdatedEvent:
		logger.Debug("reading updated", "profile", e.ProfileID, "session", e.Reading.Session.Percent, "weekly", e.Reading.Weekly.Percent)
	case coordinator.ResetRecordedEvent:
		logger.Info("window reset recorded", "profile", e.ProfileID, "window", e.Window.String())
	case coordinator.ThresholdCrossedEvent:
		logger.Info("threshold crossed", "profile", e.ProfileID, "window", e.Window.String(), "threshold", e.Threshold)
	case coordinator.SourceDegradedEvent:
		logger.Warn("source degraded, re-authentication likely needed", "profile", e.ProfileID, "source", string(e.Source), "failures", e.Failures)
	case coordinator.StoreWarningEvent:
		logger.Warn("snapshot lost", "profile", e.ProfileID, "window", e.Window.String(), "error", e.Error)
	case coordinator.AutoStartRequestedEvent:
		logger.Info("session auto-start requested", "profile", e.ProfileID)
	case coordinator.ProfileActivatedEvent:
		logger.Info("active profile switched", "profile", e.ProfileID)
	case coordinator.NoEligibleProfileEvent:
		logger.Warn("no eligible profile for rotation", "profile", e.ProfileID)
	case coordinator.ProfileSuspendedEvent:
		logger.Warn("profile suspended, no usable credentials", "profile", e.ProfileID)
	case coordinator.ErrorEvent:
		logger.Error("refresh error", "profile", e.ProfileID, "error", e.Error)
	}
}
