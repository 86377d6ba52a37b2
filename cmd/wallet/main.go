package main

import (
	"fmt"
	"os"

	"github.com/blockbase-labs/oid4vc-suite/cmd/wallet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
