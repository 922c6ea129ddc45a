package services

import (
	"time"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/gcp"
)

// Config holds every setting the pipeline reads from the environment.
type Config struct {
	ProjectID       string
	VertexAIRegion  string
	CredentialsFile string
	ExtractionModel string
	AgentModel      string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ScannerModel  string

	UploadsBucket    string
	StatementsBucket string

	FirestoreDatabase string
	UsersCollection   string
	ChunksCollection  string

	PromptCatalogPath string
	AgentMaxSteps     int
	AgentTimeout      time.Duration
	ScanConcurrency   int

	WorkflowID       string
	WorkflowLocation string
}

// LoadConfig loads and validates the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ProjectID:         gcp.GetEnv("PROJECT_ID", ""),
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		CredentialsFile:   gcp.GetEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ExtractionModel:   gcp.GetEnv("EXTRACTION_MODEL", "gemini-1.5-flash-002"),
		AgentModel:        gcp.GetEnv("AGENT_MODEL", "gemini-1.5-flash-002"),
		OpenAIAPIKey:      gcp.GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     gcp.GetEnv("OPENAI_BASE_URL", ""),
		ScannerModel:      gcp.GetEnv("SCANNER_MODEL", "gpt-4o"),
		UploadsBucket:     gcp.GetEnv("UPLOADS_BUCKET", ""),
		StatementsBucket:  gcp.GetEnv("STATEMENTS_BUCKET", ""),
		FirestoreDatabase: gcp.GetEnv("FIRESTORE_DATABASE", "(default)"),
		UsersCollection:   gcp.GetEnv("FIRESTORE_COLLECTION", "salaried"),
		ChunksCollection:  gcp.GetEnv("CHUNKS_COLLECTION", "statement_chunks"),
		PromptCatalogPath: gcp.GetEnv("PROMPT_CATALOG_PATH", ""),
		AgentMaxSteps:     gcp.GetEnvInt("AGENT_MAX_STEPS", 8),
		AgentTimeout:      gcp.GetEnvDuration("AGENT_TIMEOUT", 2*time.Minute),
		ScanConcurrency:   gcp.GetEnvInt("SCAN_CONCURRENCY", 4),
		WorkflowID:        gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:  gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}

	required := []struct{ key, value string }{
		{"PROJECT_ID", cfg.ProjectID},
		{"UPLOADS_BUCKET", cfg.UploadsBucket},
		{"STATEMENTS_BUCKET", cfg.StatementsBucket},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, errs.E(errs.KindConfig, "LoadConfig", r.key+" environment variable must be set")
		}
	}
	return cfg, nil
}

// RequireOpenAI checks the secondary model credential needed for statement
// scanning and indexing.
func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return errs.E(errs.KindConfig, "Config", "OPENAI_API_KEY environment variable must be set")
	}
	return nil
}
