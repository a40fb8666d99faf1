package main

import (
	"os"

	"ipblacklist/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		log.Fatal("application terminated", "error", err)
	}
}
