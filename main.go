package main

import (
	"os"

	"github.com/meodash/meorank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
