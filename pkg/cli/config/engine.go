package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Engine holds face-animation engine pool configuration
type Engine struct {
	BasePort int
	Workers  int
	Clients  int
	Timeout  time.Duration
	LockDir  string
}

// Flags returns CLI flags for engine pool configuration
func (c *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "engine-base-port",
			Usage:       "First port of the engine instance range",
			Value:       8190,
			Destination: &c.BasePort,
			Sources:     cli.EnvVars("BLENDSTREAM_ENGINE_BASE_PORT"),
		},
		&cli.IntFlag{
			Name:        "engine-workers",
			Usage:       "Number of cooperating service processes sharing the port range",
			Value:       2,
			Destination: &c.Workers,
			Sources:     cli.EnvVars("BLENDSTREAM_ENGINE_WORKERS"),
		},
		&cli.IntFlag{
			Name:        "engine-clients",
			Usage:       "Engine clients claimed by this process",
			Value:       2,
			Destination: &c.Clients,
			Sources:     cli.EnvVars("BLENDSTREAM_ENGINE_CLIENTS"),
		},
		&cli.DurationFlag{
			Name:        "engine-timeout",
			Usage:       "Per-request timeout against an engine instance",
			Value:       90 * time.Second,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("BLENDSTREAM_ENGINE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:        "engine-lock-dir",
			Usage:       "Directory for engine port lock files",
			Value:       ".",
			Destination: &c.LockDir,
			Sources:     cli.EnvVars("BLENDSTREAM_ENGINE_LOCK_DIR"),
		},
	}
}

// PoolSize returns the total number of ports in the engine range
func (c *Engine) PoolSize() int {
	return c.Workers * c.Clients
}
