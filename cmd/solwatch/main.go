package main

import (
	"solwatch/internal/cli"
)

func main() {
	cli.Execute()
}
