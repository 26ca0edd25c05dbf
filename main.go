package main

import "github.com/devicelab-dev/scenario-runner/pkg/cli"

func main() {
	cli.Execute()
}
