// Command bypassd serves the bypass chain API and offers offline helpers
// for keys, modules and chain files.
package main

import (
	"fmt"
	"os"
)

var exit = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}
