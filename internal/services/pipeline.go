package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/gcp"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/session"
)

// StatementStore keeps full bank statements for scanning and indexing.
// *gcp.Bucket satisfies it.
type StatementStore interface {
	ObjectStore
	Read(ctx context.Context, objectName string) ([]byte, error)
}

// VerificationTrigger hands a completed stage to an out-of-band verifier.
// *gcp.WorkflowTrigger satisfies it.
type VerificationTrigger interface {
	Trigger(ctx context.Context, payload map[string]any) (string, error)
}

// StatementObject is the object name of a user's full bank statement.
func StatementObject(userID string) string {
	return userID + "/statement.pdf"
}

// PipelineDeps are the collaborators of a Pipeline. Scanner and Trigger are
// optional.
type PipelineDeps struct {
	Extractor  *Extractor
	Store      UserStore
	Statements StatementStore
	Reconciler *Reconciler
	Scanner    *Scanner
	Trigger    VerificationTrigger
}

// Pipeline runs the per-stage intake, verification and salary check flows
// and keeps each user's session state in the user record.
type Pipeline struct {
	deps PipelineDeps
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Store() UserStore { return p.deps.Store }

// ExtractDocument extracts and coerces one document without storing it.
func (p *Pipeline) ExtractDocument(ctx context.Context, file models.UploadedFile, docType models.DocType) (models.DocumentRecord, []string, error) {
	raw, err := p.deps.Extractor.Extract(ctx, file, docType)
	if err != nil {
		return nil, nil, err
	}
	record, warnings, err := models.Coerce(docType, raw)
	if err != nil {
		return nil, warnings, err
	}
	return models.Fields(record), warnings, nil
}

// SubmitStage extracts every document of a stage and stores the results.
// Extraction of all files completes before anything is written, so a failed
// extraction leaves the user record untouched.
func (p *Pipeline) SubmitStage(ctx context.Context, userID string, stage models.Profile, files map[models.DocType]models.UploadedFile) (*models.SubmitDocumentsResponse, error) {
	const op = "SubmitStage"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}
	logCtx := slog.With("userId", userID, "stage", stage)

	required := stage.SubmittedDocs()
	if required == nil {
		return nil, errs.E(errs.KindInput, op, fmt.Sprintf("unknown stage %q", stage))
	}
	var missing []string
	for _, t := range required {
		if _, ok := files[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return nil, errs.E(errs.KindInput, op, "missing documents: "+strings.Join(missing, ", "))
	}
	for t := range files {
		if !slices.Contains(required, t) {
			return nil, errs.E(errs.KindInput, op, fmt.Sprintf("document %q does not belong to stage %q", t, stage))
		}
	}

	existing, machine, err := p.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	submitEvent, err := session.SubmitEvent(stage)
	if err != nil {
		return nil, err
	}
	if !machine.Can(submitEvent) {
		return nil, errs.E(errs.KindState, op, fmt.Sprintf("cannot submit %s documents in state %s", stage, machine.State()))
	}

	sections := make(map[string]models.DocumentRecord, len(required))
	records := make([]models.Record, 0, len(required))
	warnings := map[string][]string{}
	for _, t := range required {
		raw, err := p.deps.Extractor.Extract(ctx, files[t], t)
		if err != nil {
			return nil, err
		}
		record, flagged, err := models.Coerce(t, raw)
		if err != nil {
			logCtx.Error("Extracted record rejected", "docType", t, "error", err)
			return nil, err
		}
		if len(flagged) > 0 {
			logCtx.Warn("Extracted record has flagged fields", "docType", t, "warnings", flagged)
			warnings[string(t)] = flagged
		}
		sections[string(t)] = models.Fields(record)
		records = append(records, record)
	}

	anomalies, err := p.findAnomalies(ctx, userID, records)
	if err != nil {
		return nil, err
	}

	if err := machine.Fire(submitEvent); err != nil {
		return nil, err
	}
	if err := p.persistStage(ctx, userID, existing, sections, machine); err != nil {
		return nil, err
	}

	if file, ok := files[models.DocBankStatement]; ok {
		p.saveStatement(ctx, logCtx, userID, file)
	}

	if p.deps.Trigger != nil {
		exec, err := p.deps.Trigger.Trigger(ctx, map[string]any{"userId": userID, "profile": string(stage)})
		if err != nil {
			logCtx.Error("Failed to start verification workflow", "error", err)
		} else {
			logCtx.Info("Verification workflow started.", "execution", exec)
		}
	}

	names := make([]string, 0, len(sections))
	for _, t := range required {
		names = append(names, string(t))
	}
	logCtx.Info("Stage submitted.", "sections", names, "session", machine.State())
	return &models.SubmitDocumentsResponse{
		Status:    "success",
		UserID:    userID,
		Stage:     stage,
		Sections:  names,
		Warnings:  warnings,
		Anomalies: anomalies,
		Session:   string(machine.State()),
	}, nil
}

// persistStage writes the stage's sections together with the new session
// state. For an existing user both land in one update; a new user is created
// first and has no session key until the second write succeeds.
func (p *Pipeline) persistStage(ctx context.Context, userID string, existing *models.UserRecord, sections map[string]models.DocumentRecord, m *session.Machine) error {
	if existing == nil {
		_, err := p.deps.Store.Create(ctx, userID, sections)
		if err == nil {
			return p.saveSession(ctx, userID, m)
		}
		if !errors.Is(err, errs.ErrDuplicateUser) {
			return err
		}
		// Created concurrently; fall through to the update.
	}
	fields := make(map[string]any, len(sections)+1)
	for name, record := range sections {
		fields[name] = map[string]any(record)
	}
	fields[models.FieldSession] = string(m.State())
	n, err := p.deps.Store.MergeFields(ctx, userID, fields)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.E(errs.KindNotFound, "SubmitStage", "user disappeared during submission").WithDetail(userID)
	}
	return nil
}

// saveStatement keeps the full statement for scanning and indexing. A
// failure here does not fail the submission.
func (p *Pipeline) saveStatement(ctx context.Context, logCtx *slog.Logger, userID string, file models.UploadedFile) {
	mimeType, err := detectMIMEType(file)
	if err != nil || mimeType != mimePDF {
		logCtx.Warn("Bank statement is not a PDF; salary scan will be unavailable.", "filename", file.Filename)
		return
	}
	uri, err := p.deps.Statements.Save(ctx, StatementObject(userID), mimePDF, bytes.NewReader(file.Data), false)
	if err != nil {
		logCtx.Error("Failed to store full bank statement", "error", err)
		return
	}
	logCtx.Info("Stored full bank statement.", "uri", uri)
}

// findAnomalies reports identifying numbers that other users also hold.
// Duplicates are allowed; they are surfaced, never rejected.
func (p *Pipeline) findAnomalies(ctx context.Context, userID string, records []models.Record) ([]models.Anomaly, error) {
	var anomalies []models.Anomaly
	for _, r := range records {
		path, value := r.Identifier()
		if path == "" || value == "" {
			continue
		}
		ids, err := p.deps.Store.FindByIdentifier(ctx, path, value)
		if err != nil {
			return nil, err
		}
		others := slices.DeleteFunc(ids, func(id string) bool { return id == userID })
		if len(others) == 0 {
			continue
		}
		slog.Warn("Identifying number is shared with other users", "userId", userID, "path", path, "otherUsers", others)
		anomalies = append(anomalies, models.Anomaly{Path: path, Value: value, OtherUsers: others})
	}
	return anomalies, nil
}

// Verify runs the reconciliation agent for a profile and advances the
// session on a PASS or FAIL. AMBIGUOUS and TIMEOUT leave the session pending.
func (p *Pipeline) Verify(ctx context.Context, userID string, profile models.Profile) (*models.VerifyDocumentsResponse, error) {
	const op = "Verify"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}
	existing, machine, err := p.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "user not found").WithDetail(userID)
	}
	passEvent, err := session.VerdictEvent(profile, true)
	if err != nil {
		return nil, err
	}
	if !machine.Can(passEvent) {
		return nil, errs.E(errs.KindState, op, fmt.Sprintf("cannot verify %s documents in state %s", profile, machine.State()))
	}

	verdict, err := p.deps.Reconciler.Reconcile(ctx, &storeRetriever{pipeline: p, userID: userID}, profile)
	if err != nil {
		return nil, err
	}

	switch verdict.Outcome {
	case models.OutcomePass, models.OutcomeFail:
		event, _ := session.VerdictEvent(profile, verdict.Passed())
		if err := machine.Fire(event); err != nil {
			return nil, err
		}
		if err := p.saveSession(ctx, userID, machine); err != nil {
			return nil, err
		}
	default:
		slog.Warn("Verification inconclusive; session left pending.", "userId", userID, "profile", profile, "outcome", verdict.Outcome)
	}

	return &models.VerifyDocumentsResponse{
		Status:  "success",
		Verdict: verdict,
		Session: string(machine.State()),
	}, nil
}

// ScanSalary scans the user's stored bank statement for employer credits.
func (p *Pipeline) ScanSalary(ctx context.Context, userID string) (*models.ScanSalaryResponse, error) {
	const op = "ScanSalary"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}
	if p.deps.Scanner == nil {
		return nil, errs.E(errs.KindConfig, op, "statement scanner is not configured")
	}
	existing, machine, err := p.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "user not found").WithDetail(userID)
	}
	if err := machine.Fire(session.StartSalaryCheck); err != nil {
		return nil, err
	}
	if err := p.saveSession(ctx, userID, machine); err != nil {
		return nil, err
	}

	observations, err := p.scanStatement(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := machine.Fire(session.SalaryChecked); err != nil {
		return nil, err
	}
	if err := p.saveSession(ctx, userID, machine); err != nil {
		return nil, err
	}
	return &models.ScanSalaryResponse{
		Status:       "success",
		Observations: observations,
		Session:      string(machine.State()),
	}, nil
}

// ReadStatement returns the user's stored full bank statement.
func (p *Pipeline) ReadStatement(ctx context.Context, userID string) ([]byte, error) {
	data, err := p.deps.Statements.Read(ctx, StatementObject(userID))
	if err != nil {
		if gcp.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindNotFound, "ReadStatement", err, "no bank statement stored").WithDetail(userID)
		}
		return nil, errs.Wrap(errs.KindStore, "ReadStatement", err, "failed to read bank statement")
	}
	return data, nil
}

func (p *Pipeline) scanStatement(ctx context.Context, userID string) ([]models.TransactionObservation, error) {
	data, err := p.ReadStatement(ctx, userID)
	if err != nil {
		return nil, err
	}
	pages, err := ReadPages(data)
	if err != nil {
		return nil, err
	}
	return p.deps.Scanner.Scan(ctx, pages)
}

// loadSession returns the user's record (nil for a new user) and session.
func (p *Pipeline) loadSession(ctx context.Context, userID string) (*models.UserRecord, *session.Machine, error) {
	rec, err := p.deps.Store.Get(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, session.New(session.NeedsIdentity), nil
	}
	if err != nil {
		return nil, nil, err
	}
	raw, _ := rec.Extra[models.FieldSession].(string)
	state, err := session.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return rec, session.New(state), nil
}

func (p *Pipeline) saveSession(ctx context.Context, userID string, m *session.Machine) error {
	n, err := p.deps.Store.MergeFields(ctx, userID, map[string]any{models.FieldSession: string(m.State())})
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.E(errs.KindNotFound, "saveSession", "user not found").WithDetail(userID)
	}
	return nil
}

// storeRetriever serves the agent's tools from the user store and the
// stored bank statement.
type storeRetriever struct {
	pipeline *Pipeline
	userID   string
}

func (r *storeRetriever) FetchSection(ctx context.Context, docType models.DocType) (map[string]any, error) {
	rec, err := r.pipeline.deps.Store.Get(ctx, r.userID, string(docType))
	if errors.Is(err, errs.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	section := rec.Section(string(docType))
	if section == nil {
		return map[string]any{}, nil
	}
	return map[string]any(section), nil
}

func (r *storeRetriever) FetchTransactions(ctx context.Context) (map[string]any, error) {
	if r.pipeline.deps.Scanner == nil {
		return map[string]any{}, nil
	}
	observations, err := r.pipeline.scanStatement(ctx, r.userID)
	if errors.Is(err, errs.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"observations": observations}, nil
}
