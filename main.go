// The main package for the harvestkit executable.
package main

import (
	"github.com/harvestkit/harvestkit/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
