package main

import (
	"os"

	"github.com/solatis/schemainspector/cmd/schemainspector/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
