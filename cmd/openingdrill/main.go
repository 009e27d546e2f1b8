package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/conorfennell/openingdrill/internal/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
