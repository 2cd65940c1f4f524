package main

import "github.com/agentic-research/catalyst/cmd"

func main() {
	cmd.Execute()
}
