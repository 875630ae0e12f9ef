package main

import (
	"os"

	"github.com/lisanmuaddib/steam-harvest/internal/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
