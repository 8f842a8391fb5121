package main

import "piperun/internal/cli"

func main() {
	cli.Execute()
}
