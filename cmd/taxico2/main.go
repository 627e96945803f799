package main

import (
	"fmt"
	"os"

	"github.com/wonny/taxico2/cmd/taxico2/commands"
)

// main is the entry point for the taxico2 CLI
// ⭐ Unified CLI entry point: go run ./cmd/taxico2 [command]
func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
