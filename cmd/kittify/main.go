package main

import (
	"os"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
