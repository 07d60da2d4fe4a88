// Package main is the entry point for sessiond.
package main

import (
	"os"

	"github.com/MrEthical07/goSession/cmd/sessiond/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
