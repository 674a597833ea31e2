package main

import (
	"os"

	"github.com/elmoxbt/x402-defi-yield-api/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
