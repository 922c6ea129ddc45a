package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentverification/internal/handlers"
	"github.com/Lllllllleong/documentverification/internal/services"
)

var (
	rt      *services.Runtime
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleSubmitDocuments", handleSubmitDocuments)
}

// main is required by the Go Functions Framework.
func main() {}

func handleSubmitDocuments(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		rt, initErr = services.NewRuntime(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: intake initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlers.SubmitDocuments(rt.Pipeline).ServeHTTP(w, r)
}
