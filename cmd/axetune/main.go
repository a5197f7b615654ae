package main

import (
	"github.com/shizukutanaka/axetune/cmd/axetune/commands"
)

// Minimal entrypoint that delegates to the Cobra CLI defined in cmd/axetune/commands.
func main() {
	commands.Execute()
}
