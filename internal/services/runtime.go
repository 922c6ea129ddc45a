package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/gcp"
	"github.com/Lllllllleong/documentverification/internal/llm"
	"github.com/Lllllllleong/documentverification/internal/prompts"
)

// Runtime owns the cloud clients behind a Pipeline.
type Runtime struct {
	Config   *Config
	Pipeline *Pipeline
	// Indexer is nil when no OpenAI credential is configured.
	Indexer *Indexer

	closers []func() error
}

// NewRuntime builds every client from the environment.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg}
	if err := rt.init(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) init(ctx context.Context) error {
	cfg := rt.Config
	opts := gcp.ClientOptions(cfg.CredentialsFile)

	catalog, err := prompts.Load(cfg.PromptCatalogPath)
	if err != nil {
		return err
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "NewRuntime", err, "failed to create storage client")
	}
	rt.closers = append(rt.closers, storageClient.Close)

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase, opts...)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "NewRuntime", err, "failed to create firestore client")
	}
	rt.closers = append(rt.closers, firestoreClient.Close)

	vertexClient, err := gcp.NewVertexClient(ctx, gcp.VertexConfig{
		ProjectID:       cfg.ProjectID,
		Region:          cfg.VertexAIRegion,
		ExtractionModel: cfg.ExtractionModel,
		AgentModel:      cfg.AgentModel,
		CredentialsFile: cfg.CredentialsFile,
	})
	if err != nil {
		return errs.Wrap(errs.KindConfig, "NewRuntime", err, "failed to create vertex client")
	}
	rt.closers = append(rt.closers, vertexClient.Close)

	deps := PipelineDeps{
		Extractor:  NewExtractor(vertexClient.ExtractionModel, gcp.NewBucket(storageClient, cfg.UploadsBucket), catalog),
		Store:      NewFirestoreUserStore(firestoreClient, cfg.UsersCollection),
		Statements: gcp.NewBucket(storageClient, cfg.StatementsBucket),
		Reconciler: NewReconciler(vertexClient, ReconcilerConfig{MaxSteps: cfg.AgentMaxSteps, Timeout: cfg.AgentTimeout}),
	}

	if cfg.RequireOpenAI() == nil {
		openAI := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ScannerModel, cfg.OpenAIBaseURL)
		deps.Scanner = NewScanner(openAI, cfg.ScanConcurrency)
		rt.Indexer = NewIndexer(firestoreClient, openAI, IndexerConfig{Collection: cfg.ChunksCollection})
	} else {
		slog.Warn("OPENAI_API_KEY not set; statement scanning and indexing are disabled.")
	}

	if cfg.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID, opts...)
		if err != nil {
			return errs.Wrap(errs.KindConfig, "NewRuntime", err, "failed to create workflow trigger")
		}
		rt.closers = append(rt.closers, trigger.Close)
		deps.Trigger = trigger
	}

	rt.Pipeline = NewPipeline(deps)
	slog.Info("Pipeline initialized.",
		"projectId", cfg.ProjectID,
		"usersCollection", cfg.UsersCollection,
		"scanner", deps.Scanner != nil,
		"workflowId", cfg.WorkflowID,
	)
	return nil
}

// Close releases every client in reverse creation order.
func (rt *Runtime) Close() error {
	var errList []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	rt.closers = nil
	if len(errList) > 0 {
		return fmt.Errorf("closing clients: %w", errors.Join(errList...))
	}
	return nil
}
