package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"cdcreader/capture/embedded"
	"cdcreader/capture/kafka"
)

func main() {
	embedded.RegisterSource("kafka", kafka.New)

	cmd := &cli.Command{
		Name:  "cdcreader",
		Usage: "Run change-data-capture tasks and forward their batches to sinks",
		Commands: []*cli.Command{
			runCmd,
			statusCmd,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
