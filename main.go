// The main package for the seedcrawl executable.
package main

import (
	"github.com/JakeFAU/seedcrawl/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
