package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultImage = "postgres:16-alpine"
	pgPort       = "5432/tcp"
)

// Container is a running postgres test container.
type Container struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type Option func(req *testcontainers.ContainerRequest)

func WithImage(image string) Option {
	return func(req *testcontainers.ContainerRequest) {
		req.Image = image
	}
}

func WithWaitStrategy(strategies ...wait.Strategy) Option {
	return func(req *testcontainers.ContainerRequest) {
		req.WaitingFor = wait.ForAll(strategies...).WithDeadline(1 * time.Minute)
	}
}

// WithName makes the container reusable across test packages.
func WithName(containerName string) Option {
	return func(req *testcontainers.ContainerRequest) {
		req.Name = containerName
	}
}

func WithDatabase(user, password, dbName string) Option {
	return func(req *testcontainers.ContainerRequest) {
		req.Env["POSTGRES_USER"] = user
		req.Env["POSTGRES_PASSWORD"] = password
		req.Env["POSTGRES_DB"] = dbName
	}
}

// Start runs a postgres container with fsync disabled.
func Start(ctx context.Context, opts ...Option) (*Container, error) {
	req := testcontainers.ContainerRequest{
		Image: defaultImage,
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "postgres",
		},
		ExposedPorts: []string{pgPort},
		Cmd:          []string{"postgres", "-c", "fsync=off"},
	}
	for _, opt := range opts {
		opt(&req)
	}

	c, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &Container{
		Container: c,
		user:      req.Env["POSTGRES_USER"],
		password:  req.Env["POSTGRES_PASSWORD"],
		dbName:    req.Env["POSTGRES_DB"],
	}, nil
}

// ConnString returns the url to reach the database from the host.
func (c *Container) ConnString(ctx context.Context) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, nat.Port(pgPort))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.dbName), nil
}
