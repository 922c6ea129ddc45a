package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routingGenerator answers by document type, recognised from the prompt.
type routingGenerator struct {
	replies map[models.DocType]string
	calls   int
}

func (g *routingGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.calls++
	prompt := string(parts[len(parts)-1].(genai.Text))
	for t, r := range g.replies {
		if prompt == "extract "+string(t) {
			if r == "" {
				return nil, errors.New("model unavailable")
			}
			return textResponse(r), nil
		}
	}
	return nil, errors.New("unexpected prompt " + prompt)
}

type recordingTrigger struct{ payloads []map[string]any }

func (r *recordingTrigger) Trigger(_ context.Context, payload map[string]any) (string, error) {
	r.payloads = append(r.payloads, payload)
	return "executions/1", nil
}

type pipelineFixture struct {
	pipeline   *Pipeline
	store      *MemoryUserStore
	uploads    *fakeObjectStore
	statements *fakeObjectStore
	generator  *routingGenerator
	chat       *scriptedChat
	completer  *fakeCompleter
	trigger    *recordingTrigger
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:      NewMemoryUserStore(),
		uploads:    &fakeObjectStore{},
		statements: &fakeObjectStore{},
		generator: &routingGenerator{replies: map[models.DocType]string{
			models.DocPAN:           `{"Name": "Asha Rao", "DOB": "1990-01-05", "PAN_number": "abcde1234f"}`,
			models.DocAadhar:        "```json\n{\"Name\": \"Asha Rao\", \"DOB\": \"05/01/1990\", \"Aadhar_number\": \"1234 5678 9012\", \"Address\": \"12 MG Road, Pune\"}\n```",
			models.DocBankStatement: `{"Account_holder_name": "Asha Rao", "Address": "12 MG Road, Pune", "IFSC": "HDFC0001234", "Branch_code": "0001"}`,
			models.DocITR:           `{"Name": "Asha Rao", "PAN_number": "ABCDE1234F", "Employer_name": "Acme Pvt Ltd"}`,
			models.DocForm16:        `{"Employee_name": "Asha Rao", "Employee_PAN": "ABCDE1234F", "Employer_name": "Acme Private Limited"}`,
		}},
		chat:      &scriptedChat{},
		completer: &fakeCompleter{answer: func(string) (string, error) { return noCredit, nil }},
		trigger:   &recordingTrigger{},
	}
	prompts := fakePrompts{}
	for _, dt := range models.AllDocTypes {
		prompts[string(dt)] = "extract " + string(dt)
	}
	extractor := NewExtractor(f.generator, f.uploads, prompts)
	extractor.TempDir = t.TempDir()
	f.pipeline = NewPipeline(PipelineDeps{
		Extractor:  extractor,
		Store:      f.store,
		Statements: f.statements,
		Reconciler: NewReconciler(f.chat, ReconcilerConfig{MaxSteps: 4, Timeout: time.Second}),
		Scanner:    NewScanner(f.completer, 2),
		Trigger:    f.trigger,
	})
	return f
}

func identityFiles() map[models.DocType]models.UploadedFile {
	return map[models.DocType]models.UploadedFile{
		models.DocPAN:           {Filename: "pan.jpg", Data: []byte("jpeg bytes")},
		models.DocAadhar:        {Filename: "aadhar.png", Data: []byte("png bytes")},
		models.DocBankStatement: {Filename: "statement.pdf", Data: buildPDF([]string{"Page one", "NEFT CR ACME 85000", "Page three"})},
	}
}

func incomeFiles() map[models.DocType]models.UploadedFile {
	return map[models.DocType]models.UploadedFile{
		models.DocITR:    {Filename: "itr.pdf", Data: buildPDF([]string{"ITR"})},
		models.DocForm16: {Filename: "form16.pdf", Data: buildPDF([]string{"Form 16"})},
	}
}

func TestSubmitIdentityStage(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	resp, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"pan", "aadhar", "bankstatement"}, resp.Sections)
	assert.Equal(t, string(session.IdentityPending), resp.Session)
	assert.Empty(t, resp.Anomalies)
	require.Contains(t, resp.Warnings, "bankstatement")
	assert.Contains(t, resp.Warnings["bankstatement"][0], "Branch_code")

	rec, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", rec.Section("pan")["PAN_number"])
	assert.Equal(t, "Asha Rao", rec.Section("aadhar")["Name"])
	assert.Equal(t, string(session.IdentityPending), rec.Extra["session"])

	stored, err := f.statements.Read(ctx, StatementObject("u1"))
	require.NoError(t, err)
	assert.Equal(t, identityFiles()[models.DocBankStatement].Data, stored)

	require.Len(t, f.trigger.payloads, 1)
	assert.Equal(t, map[string]any{"userId": "u1", "profile": "identity"}, f.trigger.payloads[0])
}

func TestSubmitStageResubmissionReplacesSections(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)

	f.generator.replies[models.DocPAN] = `{"Name": "Asha K Rao"}`
	resp, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)
	assert.Equal(t, string(session.IdentityPending), resp.Session)

	rec, err := f.store.Get(ctx, "u1", "pan")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentRecord{"Name": "Asha K Rao"}, rec.Section("pan"))
}

// failingStore fails the configured operations and delegates the rest.
type failingStore struct {
	*MemoryUserStore
	findErr  error
	mergeErr error
}

func (s *failingStore) FindByIdentifier(ctx context.Context, path, value string) ([]string, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryUserStore.FindByIdentifier(ctx, path, value)
}

func (s *failingStore) MergeFields(ctx context.Context, userID string, fields map[string]any) (int, error) {
	if s.mergeErr != nil {
		return 0, s.mergeErr
	}
	return s.MemoryUserStore.MergeFields(ctx, userID, fields)
}

func TestSubmitStageStoreFailureKeepsRecordConsistent(t *testing.T) {
	storeErr := errs.E(errs.KindStore, "UserStore", "unavailable")

	t.Run("identifier lookup", func(t *testing.T) {
		f := newPipelineFixture(t)
		ctx := context.Background()
		f.pipeline.deps.Store = &failingStore{MemoryUserStore: f.store, findErr: storeErr}

		_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
		require.True(t, errors.Is(err, errs.ErrStore))

		_, err = f.store.Get(ctx, "u1")
		assert.True(t, errors.Is(err, errs.ErrNotFound))
		assert.Empty(t, f.statements.saved)
		assert.Empty(t, f.trigger.payloads)
	})

	t.Run("section update", func(t *testing.T) {
		f := newPipelineFixture(t)
		ctx := context.Background()
		_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
		require.NoError(t, err)
		_, err = f.store.MergeFields(ctx, "u1", map[string]any{"session": string(session.NeedsIdentity)})
		require.NoError(t, err)

		f.pipeline.deps.Store = &failingStore{MemoryUserStore: f.store, mergeErr: storeErr}
		f.generator.replies[models.DocPAN] = `{"Name": "Asha K Rao"}`
		_, err = f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
		require.True(t, errors.Is(err, errs.ErrStore))

		rec, err := f.store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Asha Rao", rec.Section("pan")["Name"])
		assert.Equal(t, string(session.NeedsIdentity), rec.Extra["session"])
		assert.Len(t, f.trigger.payloads, 1)
	})
}

func TestSubmitStageRejectsIncompleteOrForeignDocuments(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	files := identityFiles()
	delete(files, models.DocAadhar)
	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, files)
	require.True(t, errors.Is(err, errs.ErrInput))
	assert.Contains(t, err.Error(), "aadhar")

	files = identityFiles()
	files[models.DocITR] = models.UploadedFile{Filename: "itr.pdf", Data: buildPDF([]string{"ITR"})}
	_, err = f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, files)
	assert.True(t, errors.Is(err, errs.ErrInput))

	files = incomeFiles()
	files[models.DocPAN] = identityFiles()[models.DocPAN]
	_, err = f.pipeline.SubmitStage(ctx, "u1", models.ProfileIncome, files)
	assert.True(t, errors.Is(err, errs.ErrInput), "the income stage reuses the stored PAN card")

	assert.Zero(t, f.generator.calls)
	_, err = f.store.Get(ctx, "u1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestSubmitStageExtractionFailureWritesNothing(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.generator.replies[models.DocBankStatement] = ""

	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.True(t, errors.Is(err, errs.ErrModel))

	_, err = f.store.Get(ctx, "u1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Empty(t, f.trigger.payloads)
}

func TestSubmitStageRejectsEmptyRecord(t *testing.T) {
	f := newPipelineFixture(t)
	f.generator.replies[models.DocPAN] = `{"Passport_number": "X1234567"}`

	_, err := f.pipeline.SubmitStage(context.Background(), "u1", models.ProfileIdentity, identityFiles())
	assert.True(t, errors.Is(err, errs.ErrMalformedResponse))
}

func TestSubmitStageReportsSharedIdentifiers(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)
	resp, err := f.pipeline.SubmitStage(ctx, "u2", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)

	require.Len(t, resp.Anomalies, 2)
	paths := []string{resp.Anomalies[0].Path, resp.Anomalies[1].Path}
	assert.ElementsMatch(t, []string{"pan.PAN_number", "aadhar.Aadhar_number"}, paths)
	for _, a := range resp.Anomalies {
		assert.Equal(t, []string{"u1"}, a.OtherUsers)
	}
}

func TestSubmitIncomeBeforeIdentityIsAStateError(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.SubmitStage(context.Background(), "u1", models.ProfileIncome, incomeFiles())
	assert.True(t, errors.Is(err, errs.ErrState))
	assert.Zero(t, f.generator.calls)
}

func TestVerifyTransitions(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		outcome models.Outcome
		session session.State
	}{
		{"pass", `{"verdict":"PASS","justification":"all match"}`, models.OutcomePass, session.IdentityVerified},
		{"fail", `{"verdict":"FAIL","justification":"names differ"}`, models.OutcomeFail, session.NeedsIdentity},
		{"ambiguous", "I am not sure.", models.OutcomeAmbiguous, session.IdentityPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			ctx := context.Background()
			_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
			require.NoError(t, err)

			f.chat.script = []func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error){
				func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error) {
					return callResponse(fetch("pan"), fetch("aadhar")), nil
				},
				func(_ context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error) {
					pan := parts[0].(genai.FunctionResponse).Response
					assert.Equal(t, "ABCDE1234F", pan["PAN_number"])
					return textResponse(tt.answer), nil
				},
			}

			resp, err := f.pipeline.Verify(ctx, "u1", models.ProfileIdentity)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, resp.Verdict.Outcome)
			assert.Equal(t, string(tt.session), resp.Session)

			rec, err := f.store.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, string(tt.session), rec.Extra["session"])
		})
	}
}

func TestVerifyPreconditions(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Verify(ctx, "u1", models.ProfileIdentity)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)
	_, err = f.pipeline.Verify(ctx, "u1", models.ProfileIncome)
	assert.True(t, errors.Is(err, errs.ErrState))
	assert.Empty(t, f.chat.turns)
}

func TestScanSalary(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.completer.answer = func(user string) (string, error) {
		if strings.Contains(user, "NEFT CR ACME") {
			return "date: 01/04/2024\nemployer_name: ACME\ncredit_amount: 85000", nil
		}
		return noCredit, nil
	}

	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)

	_, err = f.pipeline.ScanSalary(ctx, "u1")
	require.True(t, errors.Is(err, errs.ErrState), "salary check needs verified income")

	_, err = f.store.MergeFields(ctx, "u1", map[string]any{"session": string(session.IncomeVerified)})
	require.NoError(t, err)

	resp, err := f.pipeline.ScanSalary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, resp.Observations, 3)
	assert.Equal(t, 2, resp.Observations[1].PageNumber)
	assert.Contains(t, resp.Observations[1].Response, "ACME")
	assert.Equal(t, noCredit, resp.Observations[2].Response)
	assert.Equal(t, string(session.Done), resp.Session)
}

func TestScanSalaryWithoutStatement(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	_, err := f.store.Create(ctx, "u1", nil)
	require.NoError(t, err)
	_, err = f.store.MergeFields(ctx, "u1", map[string]any{"session": string(session.IncomeVerified)})
	require.NoError(t, err)

	_, err = f.pipeline.ScanSalary(ctx, "u1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	rec, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, string(session.SalaryCheckPending), rec.Extra["session"])
}

func TestFullFlowThroughIncome(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	pass := func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error) {
		return textResponse(`{"verdict":"PASS","justification":"ok"}`), nil
	}
	f.chat.script = []func(context.Context, []genai.Part) (*genai.GenerateContentResponse, error){pass}

	_, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIdentity, identityFiles())
	require.NoError(t, err)
	_, err = f.pipeline.Verify(ctx, "u1", models.ProfileIdentity)
	require.NoError(t, err)

	resp, err := f.pipeline.SubmitStage(ctx, "u1", models.ProfileIncome, incomeFiles())
	require.NoError(t, err)
	assert.Equal(t, string(session.IncomePending), resp.Session)

	f.chat.turns = nil
	verify, err := f.pipeline.Verify(ctx, "u1", models.ProfileIncome)
	require.NoError(t, err)
	assert.Equal(t, string(session.IncomeVerified), verify.Session)

	rec, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Has(models.AllDocTypes...))
}

func TestExtractDocument(t *testing.T) {
	f := newPipelineFixture(t)

	fields, warnings, err := f.pipeline.ExtractDocument(context.Background(),
		models.UploadedFile{Filename: "pan.jpg", Data: []byte("jpeg bytes")}, models.DocPAN)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "ABCDE1234F", fields["PAN_number"])

	_, err = f.store.Get(context.Background(), "u1")
	assert.True(t, errors.Is(err, errs.ErrNotFound), "extraction alone stores nothing")
}
