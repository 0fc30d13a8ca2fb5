// The main package for the citepipe executable.
package main

import (
	"github.com/citepipe/citepipe/cmd"
)

func main() {
	cmd.Execute()
}
