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

	// Called by the web front end and by the verification workflow.
	functions.HTTP("HandleVerifyDocuments", handleVerifyDocuments)
}

func main() {}

func handleVerifyDocuments(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		rt, initErr = services.NewRuntime(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: verifier initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlers.VerifyDocuments(rt.Pipeline).ServeHTTP(w, r)
}
