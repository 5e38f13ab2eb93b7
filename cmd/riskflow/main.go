// Package main is the riskflow command line tool.
package main

import "github.com/aristath/riskflow/internal/cli"

func main() {
	cli.Execute()
}
