package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentverification/internal/handlers"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	rt      *services.Runtime
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by object finalization in the statements bucket.
	functions.CloudEvent("IndexStatement", indexStatement)
}

func main() {}

func indexStatement(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		rt, initErr = services.NewRuntime(context.Background())
		if initErr == nil && rt.Indexer == nil {
			initErr = rt.Config.RequireOpenAI()
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name, "eventId", e.ID())

	userID, ok := handlers.StatementUser(gcsEvent)
	if !ok {
		logCtx.Info("Object is not a bank statement. Skipping.")
		return nil
	}

	statement, err := rt.Pipeline.ReadStatement(ctx, userID)
	if err != nil {
		logCtx.Error("Failed to read statement", "error", err)
		return err
	}
	chunks, err := rt.Indexer.Index(ctx, userID, statement)
	if err != nil {
		// Already logged with context inside Index.
		return err
	}
	logCtx.Info("Statement index refreshed.", "userId", userID, "chunks", chunks)
	return nil
}
