// Package main is the entry point for the mlbdfs application
package main

import (
	"github.com/ethpandaops/mlbdfs/cmd"

	_ "time/tzdata"
)

func main() {
	cmd.Execute()
}
