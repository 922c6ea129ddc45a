package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Functions run with a read-only home directory.
	api.DisableConfigDir()
}

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimePDF  = "application/pdf"
)

var supportedMIMETypes = map[string]bool{mimeJPEG: true, mimePNG: true, mimePDF: true}

// ContentGenerator is the multimodal model call used for extraction.
// *genai.GenerativeModel satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// ObjectStore persists uploaded bytes and returns a URI the model can read.
// *gcp.Bucket satisfies it.
type ObjectStore interface {
	Save(ctx context.Context, objectName, contentType string, r io.Reader, ifAbsent bool) (string, error)
}

// PromptSource resolves a document tag to its extraction prompt.
type PromptSource interface {
	Get(tag string) (string, error)
}

// Extractor turns one uploaded document into a DocumentRecord.
type Extractor struct {
	model   ContentGenerator
	uploads ObjectStore
	prompts PromptSource
	// TempDir holds the single-page statement copies; os.TempDir() when empty.
	TempDir string
}

func NewExtractor(model ContentGenerator, uploads ObjectStore, prompts PromptSource) *Extractor {
	return &Extractor{model: model, uploads: uploads, prompts: prompts}
}

// Extract uploads the file, asks the model for the fields named by the tag's
// prompt and parses the answer into a record. Nothing is retried.
func (e *Extractor) Extract(ctx context.Context, file models.UploadedFile, tag models.DocType) (models.DocumentRecord, error) {
	const op = "Extract"
	logCtx := slog.With("docType", tag, "filename", file.Filename)

	prompt, err := e.prompts.Get(string(tag))
	if err != nil {
		return nil, err
	}

	mimeType, err := detectMIMEType(file)
	if err != nil {
		return nil, err
	}

	data := file.Data
	if tag == models.DocBankStatement && mimeType == mimePDF {
		data, err = e.firstPage(file.Data)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, op, err, "could not read bank statement PDF")
		}
		logCtx.Info("Trimmed bank statement to its first page for extraction.")
	}

	objectName := fmt.Sprintf("uploads/%s/%s", uuid.NewString(), path.Base(filepath.ToSlash(file.Filename)))
	uri, err := e.uploads.Save(ctx, objectName, mimeType, bytes.NewReader(data), true)
	if err != nil {
		logCtx.Error("Failed to upload document", "error", err)
		return nil, errs.Wrap(errs.KindUpload, op, err, "failed to upload document")
	}

	resp, err := e.model.GenerateContent(ctx, genai.FileData{MIMEType: mimeType, FileURI: uri}, genai.Text(prompt))
	if err != nil {
		logCtx.Error("Model call failed", "error", err, "uri", uri)
		return nil, errs.Wrap(errs.KindModel, op, err, "failed to generate content")
	}

	text := responseText(resp)
	if isRefusal(text) {
		logCtx.Error("Model refused the extraction", "response", text)
		return nil, errs.E(errs.KindModel, op, "model refused to extract the document").WithDetail(text)
	}

	record, err := ParseRecord(text)
	if err != nil {
		logCtx.Error("Model response is not a JSON object", "error", err)
		return nil, err
	}
	logCtx.Info("Extraction complete.", "fields", len(record))
	return record, nil
}

// firstPage writes data to a scratch directory, trims it to page 1 and
// returns the single-page PDF. The scratch files never outlive the call.
func (e *Extractor) firstPage(data []byte) ([]byte, error) {
	tempDir, err := os.MkdirTemp(e.TempDir, "statement-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	source := filepath.Join(tempDir, "source.pdf")
	trimmed := filepath.Join(tempDir, "page1.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.TrimFile(source, trimmed, []string{"1"}, cfg); err != nil {
		return nil, fmt.Errorf("failed to trim PDF: %w", err)
	}
	return os.ReadFile(trimmed)
}

// detectMIMEType infers the content type from the file extension, then from
// the content itself.
func detectMIMEType(file models.UploadedFile) (string, error) {
	if len(file.Data) == 0 {
		return "", errs.E(errs.KindInput, "detectMIMEType", "file is empty").WithDetail(file.Filename)
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil && supportedMIMETypes[mediaType] {
			return mediaType, nil
		}
	}
	sniffed := mimetype.Detect(file.Data)
	for candidate := range supportedMIMETypes {
		if sniffed.Is(candidate) {
			return candidate, nil
		}
	}
	return "", errs.E(errs.KindInput, "detectMIMEType",
		fmt.Sprintf("unsupported content type %q", sniffed.String())).WithDetail(file.Filename)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot provide",
	"as a large language model",
}

func isRefusal(text string) bool {
	if strings.HasPrefix(strings.TrimSpace(text), "{") || strings.Contains(text, "```") {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// StripFences removes a surrounding markdown code fence. It is idempotent.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseRecord parses a model answer into a record. On failure the returned
// MalformedResponse error carries the stripped text.
func ParseRecord(text string) (models.DocumentRecord, error) {
	stripped := StripFences(text)
	var record models.DocumentRecord
	if err := json.Unmarshal([]byte(stripped), &record); err != nil || record == nil {
		if err == nil {
			err = fmt.Errorf("expected a JSON object")
		}
		return nil, errs.Wrap(errs.KindMalformedResponse, "ParseRecord", err, "model response is not a JSON object").WithDetail(stripped)
	}
	return record, nil
}
