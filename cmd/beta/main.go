package main

import (
	"github.com/dyike/QuantDemo/internal/cli"
)

func main() {
	cli.RunDemo("beta")
}
