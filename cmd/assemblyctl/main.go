// Command assemblyctl computes quorum and vote tallies from an assembly file
// and checks workflow definition files, without a running server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
