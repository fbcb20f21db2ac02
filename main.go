// metrigraph imports source code analysis graphs into a queryable result
// store.
//
// The analyzer writes one graph artifact per project; metrigraph rebuilds the
// component, logical, physical and clone views from it and stores the
// resources, measures and findings for the CLI and MCP clients.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/metrigraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
