// Command treectl is the operator tool for the category tree: integrity
// checks and repair, fallback category provisioning and credential helpers.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"stockroom/internal/logger"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	if err := newApp().Run(context.Background(), args); err != nil {
		logger.Get().Fatalf("treectl: %v", err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "treectl",
		Usage: "Inspect and maintain the stockroom category tree",
		Commands: []*cli.Command{
			checkCommand(),
			repairCommand(),
			sentinelCommand(),
			tokenCommand(),
			hashKeyCommand(),
		},
	}
}
