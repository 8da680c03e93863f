// Package main provides the CLI entry point for the acceptance test runner.
//
// Build with version information:
//
//	go build -ldflags "-X github.com/example/erp/tools/acctest/internal/cli.version=1.0.0" -o acctest ./cmd
package main

import "github.com/example/erp/tools/acctest/internal/cli"

func main() {
	cli.Execute()
}
