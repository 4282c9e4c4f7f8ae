package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"cdcreader/internal/transport"
)

var statusCmd = &cli.Command{
	Name:      "status",
	Usage:     "Query the health of a running worker",
	ArgsUsage: "[task-id]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Value: "localhost:7070",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 3 * time.Second,
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		defer cancel()

		task := c.Args().First()
		st, err := transport.TaskStatus(ctx, c.String("addr"), task)
		if err != nil {
			return err
		}
		if task == "" {
			task = "worker"
		}
		fmt.Printf("%s: %s\n", task, st)
		return nil
	},
}
