package main

import (
	"os"

	wavetapcmder "github.com/wavetapco/wavetap/cmd/wavetap"
)

func main() {
	cmd := wavetapcmder.NewWavetapCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
