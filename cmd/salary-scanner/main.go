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

	functions.HTTP("HandleScanSalary", handleScanSalary)
}

func main() {}

func handleScanSalary(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		rt, initErr = services.NewRuntime(context.Background())
		if initErr == nil {
			initErr = rt.Config.RequireOpenAI()
		}
	})
	if initErr != nil {
		slog.Error("Critical: salary scanner initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlers.ScanSalary(rt.Pipeline).ServeHTTP(w, r)
}
