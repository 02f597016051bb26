// The main package for the paperflow executable.
package main

import (
	"github.com/mboyd/paperflow/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
