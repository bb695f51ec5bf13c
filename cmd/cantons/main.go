package main

import (
	"github.com/joho/godotenv"

	"github.com/beetlebugorg/cantons/cmd/cantons/cmd"
)

func main() {
	// A missing .env is fine; the environment may be set by the caller.
	_ = godotenv.Load(".env")
	cmd.Execute()
}
