package main

import (
	"github.com/joho/godotenv"

	"regrag/internal/cli"
)

func main() {
	// A .env in the working directory may hold API keys; its absence
	// is not an error.
	godotenv.Load()

	cli.Execute()
}
