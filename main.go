package main

import (
	"os"

	"futuresMegaBot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
