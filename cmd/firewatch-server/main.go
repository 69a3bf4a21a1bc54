package main

import (
	"fmt"
	"os"

	"github.com/edirooss/firewatch-server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "firewatch-server:", err)
		os.Exit(1)
	}
}
