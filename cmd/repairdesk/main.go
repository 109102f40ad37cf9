package main

import (
	"os"

	"github.com/ryanKinoti/LCS-v1/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
