package config

import "github.com/urfave/cli/v3"

// Server holds server configuration
type Server struct {
	Addr      string
	TmpDir    string
	RateLimit float64
	RateBurst int
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8000",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("BLENDSTREAM_ADDR"),
		},
		&cli.StringFlag{
			Name:        "tmp-dir",
			Usage:       "Directory for uploaded audio temp files",
			Value:       "tmp",
			Destination: &c.TmpDir,
			Sources:     cli.EnvVars("BLENDSTREAM_TMP_DIR"),
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Per-IP requests per second for audio processing",
			Value:       5,
			Destination: &c.RateLimit,
			Sources:     cli.EnvVars("BLENDSTREAM_RATE_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Per-IP burst size for audio processing",
			Value:       10,
			Destination: &c.RateBurst,
			Sources:     cli.EnvVars("BLENDSTREAM_RATE_BURST"),
		},
	}
}
