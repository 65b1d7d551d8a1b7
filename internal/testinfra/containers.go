// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Images used by the helpers below.
const (
	PostgresImage  = "postgres:16-alpine"
	RedisImage     = "redis:7-alpine"
	RabbitMQImage  = "rabbitmq:3.13-alpine"
	MosquittoImage = "eclipse-mosquitto:2"
)

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable checks if the Docker daemon is running and accessible.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}

// CleanupContainer terminates container, logging instead of failing.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container != nil {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	}
}

// ServiceContainer is a started container plus the host:port of its main
// exposed port.
type ServiceContainer struct {
	testcontainers.Container
	HostPort string
}

// startService runs req and resolves the mapped address of port.
func startService(ctx context.Context, req testcontainers.ContainerRequest, port string) (*ServiceContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mapped port %s: %w", port, err)
	}

	return &ServiceContainer{
		Container: container,
		HostPort:  fmt.Sprintf("%s:%s", host, mapped.Port()),
	}, nil
}

// PostgresContainer is a Postgres instance for the alert archive.
type PostgresContainer struct {
	*ServiceContainer
	DSN string
}

// NewPostgresContainer starts Postgres with database "tourguard".
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	svc, err := startService(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tourguard",
			"POSTGRES_PASSWORD": "tourguard",
			"POSTGRES_DB":       "tourguard",
		},
		// the server restarts once after init, so wait for the second banner
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}, "5432/tcp")
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		ServiceContainer: svc,
		DSN:              fmt.Sprintf("postgres://tourguard:tourguard@%s/tourguard?sslmode=disable", svc.HostPort),
	}, nil
}

// NewRedisContainer starts Redis; HostPort is the client address.
func NewRedisContainer(ctx context.Context) (*ServiceContainer, error) {
	return startService(ctx, testcontainers.ContainerRequest{
		Image:        RedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379/tcp")
}

// RabbitMQContainer is a broker for the alert fanout publisher.
type RabbitMQContainer struct {
	*ServiceContainer
	URL string
}

// NewRabbitMQContainer starts RabbitMQ with the default guest account.
func NewRabbitMQContainer(ctx context.Context) (*RabbitMQContainer, error) {
	svc, err := startService(ctx, testcontainers.ContainerRequest{
		Image:        RabbitMQImage,
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForLog("Server startup complete"),
		).WithStartupTimeout(120 * time.Second),
	}, "5672/tcp")
	if err != nil {
		return nil, err
	}
	return &RabbitMQContainer{
		ServiceContainer: svc,
		URL:              fmt.Sprintf("amqp://guest:guest@%s/", svc.HostPort),
	}, nil
}

// MosquittoContainer is an MQTT broker for the observation subscriber.
type MosquittoContainer struct {
	*ServiceContainer
	BrokerURL string
}

// NewMosquittoContainer starts Mosquitto accepting anonymous clients.
func NewMosquittoContainer(ctx context.Context) (*MosquittoContainer, error) {
	svc, err := startService(ctx, testcontainers.ContainerRequest{
		Image:        MosquittoImage,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(60 * time.Second),
	}, "1883/tcp")
	if err != nil {
		return nil, err
	}
	return &MosquittoContainer{
		ServiceContainer: svc,
		BrokerURL:        "tcp://" + svc.HostPort,
	}, nil
}
