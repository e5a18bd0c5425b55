package main

import (
	"os"

	"rankbacktester/cmd/backtester/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
