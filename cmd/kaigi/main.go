package main

import (
	"os"

	"github.com/haruo/kaigi/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
