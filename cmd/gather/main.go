// Command gather runs the scatter/gather collection service.
//
// Usage:
//
//	gather serve -config gather.yaml
//	gather run -topics weather,traffic
//	gather migrate -adapter postgres -output migrations
package main

import (
	"fmt"
	"os"
)

// runMain executes the root command and returns the exit code.
func runMain(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	if code := runMain(os.Args[1:]); code != 0 {
		os.Exit(code)
	}
}
