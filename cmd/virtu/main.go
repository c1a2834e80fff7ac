package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/PS-Soundwave/virtu/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("virtu exited", "error", err)
		os.Exit(1)
	}
}
