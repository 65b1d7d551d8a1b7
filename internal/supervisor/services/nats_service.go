// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tourguard/internal/logging"
)

// MessageRouter matches *eventprocessor.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// NATSRouterService runs the observation router under supervision.
type NATSRouterService struct {
	router MessageRouter
	name   string
}

// NewNATSRouterService creates the wrapper.
func NewNATSRouterService(router MessageRouter) *NATSRouterService {
	return &NATSRouterService{router: router, name: "nats-router"}
}

// Serve blocks in Run until ctx is canceled. Watermill routers are single
// use, so any other exit stops supervision of this service.
func (s *NATSRouterService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if closeErr := s.router.Close(); closeErr != nil {
		logging.Warn().Err(closeErr).Msg("closing stopped nats router")
	}
	if err != nil {
		return fmt.Errorf("%w: nats router stopped: %v", suture.ErrDoNotRestart, err)
	}
	return fmt.Errorf("%w: nats router stopped", suture.ErrDoNotRestart)
}

func (s *NATSRouterService) String() string {
	return s.name
}

// NATSServer matches *eventprocessor.EmbeddedServer.
type NATSServer interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// EmbeddedNATSService ties an embedded server's shutdown to the tree.
type EmbeddedNATSService struct {
	server          NATSServer
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewEmbeddedNATSService creates the wrapper for a started server.
func NewEmbeddedNATSService(server NATSServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		server:          server,
		checkInterval:   15 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-server",
	}
}

// Serve waits for ctx, warning if the server stops on its own, then shuts
// the server down.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("nats server shutdown: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.server.IsRunning() {
				logging.Error().Msg("embedded nats server is not running")
			}
		}
	}
}

func (s *EmbeddedNATSService) String() string {
	return s.name
}
