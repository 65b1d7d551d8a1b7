// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/api"
	"github.com/tomtom215/tourguard/internal/auth"
	"github.com/tomtom215/tourguard/internal/authz"
	"github.com/tomtom215/tourguard/internal/config"
	"github.com/tomtom215/tourguard/internal/detection"
	"github.com/tomtom215/tourguard/internal/geofence"
	"github.com/tomtom215/tourguard/internal/journal"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/mqtt"
	"github.com/tomtom215/tourguard/internal/state"
	"github.com/tomtom215/tourguard/internal/supervisor"
	"github.com/tomtom215/tourguard/internal/supervisor/services"
	ws "github.com/tomtom215/tourguard/internal/websocket"
)

//nolint:gocyclo // sequential startup wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("geofence_source", cfg.Geofence.Source).
		Bool("journal", cfg.Journal.Enabled).
		Msg("Starting TourGuard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Observation journal
	var jrnl *journal.BadgerJournal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(journal.Config{
			Path:       cfg.Journal.Path,
			InMemory:   cfg.Journal.InMemory,
			SyncWrites: cfg.Journal.SyncWrites,
			Retention:  cfg.Journal.Retention,
		})
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("Failed to open observation journal")
		}
		defer func() {
			if err := jrnl.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing observation journal")
			}
		}()
		logging.Info().Str("path", cfg.Journal.Path).Dur("retention", cfg.Journal.Retention).Msg("Observation journal opened")
	} else {
		logging.Info().Msg("Observation journal disabled (JOURNAL_ENABLED=false)")
	}

	storeOpts := state.Options{
		HistoryCapacity: cfg.Store.HistoryCapacity,
		Shards:          cfg.Store.Shards,
		AlertCooldown:   cfg.Detection.AlertCooldown,
	}
	if jrnl != nil {
		storeOpts.Journal = jrnl
	}
	store := state.New(storeOpts)

	// Danger zones. A failed load leaves the index empty and degraded.
	zones := geofence.NewIndex()
	src := zoneSource(&cfg.Geofence)
	if n, err := zones.Load(ctx, src); err != nil {
		logging.Error().Err(err).Str("source", src.String()).Msg("DANGER ZONES NOT LOADED: danger zone alerts are disabled")
	} else {
		logging.Info().Int("zones", n).Str("source", src.String()).Msg("Danger zones loaded")
	}

	// Anomaly model
	holder := anomaly.NewHolder(anomaly.NeutralScorer{})
	trainer := anomaly.NewTrainer(holder, anomaly.TrainerConfig{
		Forest: anomaly.ForestOptions{
			Trees:         cfg.Anomaly.Trees,
			SampleSize:    cfg.Anomaly.SampleSize,
			Contamination: cfg.Anomaly.Contamination,
			Seed:          cfg.Anomaly.Seed,
		},
		ModelPath:         anomaly.ModelPathFor(cfg.Anomaly.ModelDir, cfg.Anomaly.ModelFilename),
		MinTrainingRows:   cfg.Anomaly.MinTrainingRows,
		DefaultBatteryPct: cfg.Detection.DefaultBatteryPct,
	}, logging.WithComponent("anomaly"), trainingSources(cfg, jrnl)...)

	// Alert fan-out
	dispatcher := detection.NewAlertDispatcher(cfg.Detection.DispatchTimeout)
	sinks := InitSinks(ctx, cfg, dispatcher)
	defer sinks.Close()

	wsHub := ws.NewHub()
	dispatcher.AddNotifier(wsHub)

	detectors, err := detection.NewDetectors(store, zones, holder, detection.Settings{
		Route: detection.RouteDeviationConfig{
			DefaultThresholdM: cfg.Detection.RouteDeviationThresholdM,
			DistanceMode:      cfg.Detection.RouteDistanceMode,
		},
		Inactivity: detection.InactivityConfig{
			Threshold:      cfg.Detection.InactivityThreshold,
			MotionSpeedMPS: cfg.Detection.MotionSpeedMPS,
		},
		Anomaly: detection.AnomalyConfig{
			Threshold:         cfg.Detection.AnomalyThreshold,
			DefaultBatteryPct: cfg.Detection.DefaultBatteryPct,
		},
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid detector configuration")
	}
	pipeline := detection.NewPipeline(store, dispatcher, detectors...)
	if err := pipeline.ApplyDisabled(cfg.Detection.DisabledDetectors); err != nil {
		logging.Fatal().Err(err).Msg("Invalid disabled_detectors")
	}
	for _, d := range pipeline.Detectors() {
		logging.Info().Str("kind", string(d.Kind)).Bool("enabled", d.Enabled).Msg("Detector registered")
	}

	// Transports
	natsComponents, err := InitNATS(ctx, &cfg.NATS, pipeline)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}
	if ap := natsComponents.AlertPublisher(); ap != nil {
		dispatcher.AddNotifier(ap)
	}
	logging.Info().Strs("notifiers", dispatcher.Notifiers()).Msg("Alert dispatcher ready")

	// HTTP API
	var jwtManager *auth.JWTManager
	var authorizer auth.Authorizer
	if cfg.Security.AuthMode == auth.ModeJWT {
		jwtManager, err = auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTTTL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		enforcer, err := authz.NewEnforcer(authz.Config{
			PolicyPath: cfg.Security.PolicyPath,
			AdminRole:  cfg.Security.AdminRole,
		})
		if err != nil {
			logging.Fatal().Err(err).Str("policy_path", cfg.Security.PolicyPath).Msg("Failed to initialize RBAC enforcer")
		}
		authorizer = enforcer
		logging.Info().
			Str("admin_role", cfg.Security.AdminRole).
			Str("policy_path", cfg.Security.PolicyPath).
			Msg("JWT authentication and RBAC enabled for admin routes")
	} else {
		logging.Warn().Msg("AUTH_MODE=none: admin routes (training, journal export, detector config) are unauthenticated")
	}

	deps := api.Dependencies{
		Pipeline: pipeline,
		Store:    store,
		Zones:    zones,
		Model:    holder,
		History:  sinks.History,
		Trainer:  trainer,
	}
	if sinks.Narrator != nil {
		deps.Narrator = sinks.Narrator
	}
	if jrnl != nil {
		deps.Journal = jrnl
	}

	router := api.NewRouter(api.NewHandler(deps), api.RouterConfig{
		Middleware:   middlewareConfig(&cfg.Security),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		JWT:          jwtManager,
		AdminRole:    cfg.Security.AdminRole,
		Authorizer:   authorizer,
		WebSocket:    wsHub.Handler(cfg.Security.CORSOrigins),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Supervisor tree
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if jrnl != nil && cfg.Journal.GCInterval > 0 {
		tree.AddDataService(journal.NewGCService(jrnl, cfg.Journal.GCInterval, cfg.Journal.GCDiscardRatio))
	}
	tree.AddDataService(services.NewTrainerService(trainer, services.TrainerServiceConfig{
		TrainOnStartup:  cfg.Anomaly.TrainOnStartup,
		RetrainInterval: cfg.Anomaly.RetrainInterval,
	}, logging.WithComponent("trainer")))

	tree.AddMessagingService(wsHub)
	AddNATSToSupervisor(tree, natsComponents, cfg.Server.ShutdownTimeout)
	if cfg.MQTT.Enabled {
		tree.AddMessagingService(mqtt.NewSubscriber(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Topic:          cfg.MQTT.Topic,
			QoS:            byte(cfg.MQTT.QoS),
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, pipeline))
		logging.Info().Str("broker", cfg.MQTT.BrokerURL).Str("topic", cfg.MQTT.Topic).Msg("MQTT subscriber added")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Alert notifications still in flight at shutdown")
	}
	natsComponents.Close(shutdownCtx)

	logging.Info().Msg("TourGuard stopped")
}
