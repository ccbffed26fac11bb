// Command combat-engine drives the action-execution core headlessly: it
// simulates catalog recipes, parses the recipe text format and inspects
// recipe catalogs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
