package main

import (
	"os"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
