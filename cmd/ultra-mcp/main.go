package main

import (
	"os"

	"github.com/blackjuly/ultra-mcp/cli"
)

func main() {
	os.Exit(cli.Execute())
}
