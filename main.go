// The main package for the merchwatch executable.
package main

import (
	"github.com/merchwatch/crawler/cmd"
)

func main() {
	cmd.Execute()
}
