// Command redial runs a reconnect session from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "redial: %v\n", err)
		os.Exit(1)
	}
}
