package main

import "github.com/ppiankov/toolgate/internal/cli"

func main() {
	cli.Execute()
}
