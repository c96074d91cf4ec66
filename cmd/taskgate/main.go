package main

import "github.com/adeilh/taskgate/internal/cli"

func main() {
	cli.Execute()
}
