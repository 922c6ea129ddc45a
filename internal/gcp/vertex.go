package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// ExtractionSystemPrompt frames every document extraction call. The per-type
// instructions come from the prompt catalog.
const ExtractionSystemPrompt = "You are a meticulous document data extractor for identity and income documents. You read the provided file and return the requested fields as a single JSON object. Never invent values; leave a field empty when it is not legible."

// ChatSession is a multi-turn conversation with a generative model.
type ChatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	ExtractionModel *genai.GenerativeModel
	agentModelName  string
	baseClient      *genai.Client
}

// VertexConfig names the models and credentials used by NewVertexClient.
type VertexConfig struct {
	ProjectID       string
	Region          string
	ExtractionModel string
	AgentModel      string
	// CredentialsFile is optional; application default credentials are used when empty.
	CredentialsFile string
}

// ClientOptions returns the credential options shared by every Google client.
func ClientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, ClientOptions(cfg.CredentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the extraction model ---
	extractionModel := baseClient.GenerativeModel(cfg.ExtractionModel)
	extractionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractionSystemPrompt)},
	}
	extractionModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	// Identity documents routinely trip the default filters.
	extractionModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ExtractionModel: extractionModel,
		agentModelName:  cfg.AgentModel,
		baseClient:      baseClient,
	}, nil
}

// StartChat opens a conversation with the agent model using the given system
// instruction and tools. Each call gets its own model so profiles never share
// configuration.
func (c *VertexClient) StartChat(system string, tools []*genai.Tool) ChatSession {
	model := c.baseClient.GenerativeModel(c.agentModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.Tools = tools
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	return model.StartChat()
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
