package main

import (
	"fmt"
	"os"

	"github.com/aiperf-project/aiperf-core/pkg/cli"
	"github.com/aiperf-project/aiperf-core/pkg/contracts"
)

func main() {
	reg := contracts.NewRegistry()
	if err := cli.Execute(reg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
