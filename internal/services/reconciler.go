package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/gcp"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/prompts"
)

const (
	toolFetchSection      = "fetch_section"
	toolFetchTransactions = "fetch_transactions"
)

// ChatStarter opens a tool-enabled conversation. *gcp.VertexClient satisfies it.
type ChatStarter interface {
	StartChat(system string, tools []*genai.Tool) gcp.ChatSession
}

// Retriever serves document data to the agent's tools. Both methods return
// an empty map when the data is absent.
type Retriever interface {
	FetchSection(ctx context.Context, docType models.DocType) (map[string]any, error)
	FetchTransactions(ctx context.Context) (map[string]any, error)
}

type ReconcilerConfig struct {
	MaxSteps int
	Timeout  time.Duration
}

// Reconciler runs the cross-document comparison agent.
type Reconciler struct {
	chat   ChatStarter
	config ReconcilerConfig
}

func NewReconciler(chat ChatStarter, config ReconcilerConfig) *Reconciler {
	if config.MaxSteps < 1 {
		config.MaxSteps = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &Reconciler{chat: chat, config: config}
}

type profileSetup struct {
	system, user           string
	passMarker, failMarker string
}

var profileSetups = map[models.Profile]profileSetup{
	models.ProfileIdentity: {prompts.IdentitySystemPrompt, prompts.IdentityUserPrompt, prompts.IdentityPassMarker, prompts.IdentityFailMarker},
	models.ProfileIncome:   {prompts.IncomeSystemPrompt, prompts.IncomeUserPrompt, prompts.IncomePassMarker, prompts.IncomeFailMarker},
}

// Reconcile lets the agent fetch the profile's documents through retriever
// and returns its verdict. Exhausting the step budget yields AMBIGUOUS and
// running out of time yields TIMEOUT; neither is an error.
func (r *Reconciler) Reconcile(ctx context.Context, retriever Retriever, profile models.Profile) (*models.Verdict, error) {
	const op = "Reconcile"
	setup, ok := profileSetups[profile]
	if !ok {
		return nil, errs.E(errs.KindInput, op, fmt.Sprintf("unknown profile %q", profile))
	}
	logCtx := slog.With("profile", profile)

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	session := r.chat.StartChat(setup.system, reconcileTools(profile))
	parts := []genai.Part{genai.Text(setup.user)}

	for step := 1; step <= r.config.MaxSteps; step++ {
		resp, err := session.SendMessage(ctx, parts...)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logCtx.Warn("Reconciliation timed out.", "steps", step, "timeout", r.config.Timeout)
				return r.timedOut(profile, step), nil
			}
			logCtx.Error("Agent model call failed", "error", err, "step", step)
			return nil, errs.Wrap(errs.KindModel, op, err, "agent model call failed")
		}

		calls := functionCalls(resp)
		if len(calls) == 0 {
			verdict := interpretAnswer(profile, setup, responseText(resp))
			verdict.Steps = step
			if verdict.Outcome == models.OutcomeAmbiguous {
				logCtx.Warn("Reconciliation ended without a recognisable verdict.", "steps", step, "answer", verdict.Report)
			} else {
				logCtx.Info("Reconciliation complete.", "outcome", verdict.Outcome, "steps", step, "marker", verdict.Marker)
			}
			return verdict, nil
		}

		parts = make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			logCtx.Info("Agent called tool.", "tool", call.Name, "args", call.Args, "step", step)
			result, err := dispatchTool(ctx, retriever, profile, call)
			if err != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					logCtx.Warn("Reconciliation timed out during a tool call.", "tool", call.Name, "steps", step, "timeout", r.config.Timeout)
					return r.timedOut(profile, step), nil
				}
				logCtx.Error("Tool failed", "tool", call.Name, "error", err)
				return nil, err
			}
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: result})
		}
	}

	logCtx.Warn("Reconciliation hit the step limit.", "maxSteps", r.config.MaxSteps)
	return &models.Verdict{
		Profile:       profile,
		Outcome:       models.OutcomeAmbiguous,
		Justification: fmt.Sprintf("no verdict after %d steps", r.config.MaxSteps),
		Steps:         r.config.MaxSteps,
	}, nil
}

func (r *Reconciler) timedOut(profile models.Profile, steps int) *models.Verdict {
	return &models.Verdict{
		Profile:       profile,
		Outcome:       models.OutcomeTimeout,
		Justification: fmt.Sprintf("no verdict within %s", r.config.Timeout),
		Steps:         steps,
	}
}

func reconcileTools(profile models.Profile) []*genai.Tool {
	var docTypes []string
	for _, t := range profile.RequiredDocs() {
		docTypes = append(docTypes, string(t))
	}
	decls := []*genai.FunctionDeclaration{{
		Name:        toolFetchSection,
		Description: "Returns the extracted fields of one submitted document, or an empty object when it was not submitted.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"doc_type": {
					Type:        genai.TypeString,
					Description: "The document to fetch.",
					Enum:        docTypes,
				},
			},
			Required: []string{"doc_type"},
		},
	}}
	if profile == models.ProfileIncome {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        toolFetchTransactions,
			Description: "Returns the employer salary credits found in the applicant's bank statement, one entry per page.",
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].FunctionCalls()
}

// dispatchTool runs one tool call. Bad arguments are reported back to the
// model; retriever failures abort the reconciliation.
func dispatchTool(ctx context.Context, retriever Retriever, profile models.Profile, call genai.FunctionCall) (map[string]any, error) {
	var (
		result map[string]any
		err    error
	)
	switch call.Name {
	case toolFetchSection:
		raw, _ := call.Args["doc_type"].(string)
		docType, perr := models.ParseDocType(strings.ToLower(strings.TrimSpace(raw)))
		if perr != nil {
			return map[string]any{"error": perr.Error()}, nil
		}
		result, err = retriever.FetchSection(ctx, docType)
	case toolFetchTransactions:
		if profile != models.ProfileIncome {
			return map[string]any{"error": "fetch_transactions is not available for this check"}, nil
		}
		result, err = retriever.FetchTransactions(ctx)
	default:
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}, nil
	}
	if err != nil {
		return nil, err
	}
	return jsonSafe(result), nil
}

// jsonSafe normalises a tool result into the plain maps and slices the
// function-response encoder accepts.
func jsonSafe(m map[string]any) map[string]any {
	if len(m) == 0 {
		return map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

type agentAnswer struct {
	Verdict       string `json:"verdict"`
	Justification string `json:"justification"`
	Report        string `json:"report"`
}

// interpretAnswer reads the structured answer, falling back to the legacy
// pass/fail markers.
func interpretAnswer(profile models.Profile, setup profileSetup, text string) *models.Verdict {
	verdict := &models.Verdict{Profile: profile, Outcome: models.OutcomeAmbiguous, Report: strings.TrimSpace(text)}

	if ans, ok := parseAgentAnswer(text); ok {
		switch strings.ToUpper(strings.TrimSpace(ans.Verdict)) {
		case string(models.OutcomePass):
			verdict.Outcome = models.OutcomePass
		case string(models.OutcomeFail):
			verdict.Outcome = models.OutcomeFail
		}
		verdict.Justification = ans.Justification
		if ans.Report != "" {
			verdict.Report = ans.Report
		}
		if verdict.Outcome != models.OutcomeAmbiguous {
			return verdict
		}
	}

	hasFail := strings.Contains(text, setup.failMarker)
	hasPass := strings.Contains(text, setup.passMarker)
	switch {
	case hasFail && !hasPass:
		verdict.Outcome = models.OutcomeFail
		verdict.Marker = setup.failMarker
	case hasPass && !hasFail:
		verdict.Outcome = models.OutcomePass
		verdict.Marker = setup.passMarker
	}
	if verdict.Justification == "" && verdict.Outcome != models.OutcomeAmbiguous {
		verdict.Justification = "decided from the report marker"
	}
	return verdict
}

func parseAgentAnswer(text string) (agentAnswer, bool) {
	var ans agentAnswer
	stripped := StripFences(text)
	if json.Unmarshal([]byte(stripped), &ans) == nil && ans.Verdict != "" {
		return ans, true
	}
	start, end := strings.Index(stripped, "{"), strings.LastIndex(stripped, "}")
	if start >= 0 && end > start {
		if json.Unmarshal([]byte(stripped[start:end+1]), &ans) == nil && ans.Verdict != "" {
			return ans, true
		}
	}
	return agentAnswer{}, false
}
