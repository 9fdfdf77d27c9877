package main

import (
	"os"

	"lightup/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
