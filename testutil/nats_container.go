package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NATSServer is a disposable NATS server running in a container
type NATSServer struct {
	container testcontainers.Container
	URL       string
}

// NATSOption configures a NATSServer
type NATSOption func(*natsConfig)

type natsConfig struct {
	version      string
	startTimeout time.Duration
}

// WithNATSVersion selects the nats image tag
func WithNATSVersion(version string) NATSOption {
	return func(cfg *natsConfig) {
		cfg.version = version
	}
}

// WithStartTimeout bounds container startup
func WithStartTimeout(timeout time.Duration) NATSOption {
	return func(cfg *natsConfig) {
		cfg.startTimeout = timeout
	}
}

// StartNATS starts a NATS container for integration tests. The container is
// terminated when the test ends.
func StartNATS(t testing.TB, opts ...NATSOption) *NATSServer {
	t.Helper()

	srv, err := startNATS(context.Background(), opts...)
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.container.Terminate(context.Background()) // Best effort test cleanup
	})
	return srv
}

func startNATS(ctx context.Context, opts ...NATSOption) (*NATSServer, error) {
	cfg := &natsConfig{
		version:      "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.version,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &NATSServer{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}, nil
}
