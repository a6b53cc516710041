package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/visagekit/blendstream/pkg/ci"
)

func cmdVerifyRelease() *cli.Command {
	return &cli.Command{
		Name:      "verify-release",
		Usage:     "Verify the structural properties of a release workflow document",
		ArgsUsage: "<workflow file>",
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if c.Args().Len() != 1 {
				return goerr.New("exactly one workflow file is required")
			}
			path := c.Args().First()

			workflow, err := ci.Load(path)
			if err != nil {
				return goerr.Wrap(err, "failed to load workflow")
			}

			violations := ci.VerifyRelease(workflow)
			if len(violations) == 0 {
				logger.Info("Release workflow verified", slog.String("file", path))
				return nil
			}

			for _, v := range violations {
				logger.Error("Release workflow violation",
					slog.String("check", v.Check),
					slog.String("detail", v.Message),
				)
			}
			return goerr.New("release workflow verification failed")
		},
	}
}
