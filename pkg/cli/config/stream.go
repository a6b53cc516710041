package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Stream holds streaming pipeline configuration
type Stream struct {
	ChunkDuration time.Duration
	DefaultFPS    int
	MinFPS        int
	MaxFPS        int
}

// Flags returns CLI flags for streaming pipeline configuration
func (c *Stream) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "chunk-duration",
			Usage:       "Audio window length per engine call",
			Value:       300 * time.Millisecond,
			Destination: &c.ChunkDuration,
			Sources:     cli.EnvVars("BLENDSTREAM_CHUNK_DURATION"),
		},
		&cli.IntFlag{
			Name:        "default-fps",
			Usage:       "Frame rate used when the request does not specify one",
			Value:       10,
			Destination: &c.DefaultFPS,
			Sources:     cli.EnvVars("BLENDSTREAM_DEFAULT_FPS"),
		},
		&cli.IntFlag{
			Name:        "min-fps",
			Usage:       "Lower bound of the adaptive frame rate",
			Value:       10,
			Destination: &c.MinFPS,
			Sources:     cli.EnvVars("BLENDSTREAM_MIN_FPS"),
		},
		&cli.IntFlag{
			Name:        "max-fps",
			Usage:       "Upper bound of the adaptive frame rate",
			Value:       30,
			Destination: &c.MaxFPS,
			Sources:     cli.EnvVars("BLENDSTREAM_MAX_FPS"),
		},
	}
}
