package main

import (
	"os"

	"github.com/victornm/livequiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
