// Package handlers adapts the pipeline to the HTTP and CloudEvent function
// signatures used by the cmd entry points.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
)

// maxUploadBytes bounds one multipart submission held in memory.
const maxUploadBytes = 32 << 20

// Pipeline is the subset of *services.Pipeline the HTTP functions call.
type Pipeline interface {
	SubmitStage(ctx context.Context, userID string, stage models.Profile, files map[models.DocType]models.UploadedFile) (*models.SubmitDocumentsResponse, error)
	Verify(ctx context.Context, userID string, profile models.Profile) (*models.VerifyDocumentsResponse, error)
	ScanSalary(ctx context.Context, userID string) (*models.ScanSalaryResponse, error)
}

// SubmitDocuments handles a multipart form with userId, stage and one file
// field per document type.
func SubmitDocuments(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			slog.Warn("Could not parse multipart form", "error", err)
			WriteError(w, errs.Wrap(errs.KindInput, "SubmitDocuments", err, "could not parse multipart form"))
			return
		}

		stage, err := models.ParseProfile(r.FormValue("stage"))
		if err != nil {
			WriteError(w, errs.Wrap(errs.KindInput, "SubmitDocuments", err, ""))
			return
		}
		files, err := readFiles(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		res, err := p.SubmitStage(r.Context(), r.FormValue("userId"), stage, files)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func readFiles(r *http.Request) (map[models.DocType]models.UploadedFile, error) {
	files := make(map[models.DocType]models.UploadedFile)
	if r.MultipartForm == nil {
		return files, nil
	}
	for field, headers := range r.MultipartForm.File {
		docType, err := models.ParseDocType(field)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "SubmitDocuments", err, "")
		}
		if len(headers) != 1 {
			return nil, errs.E(errs.KindInput, "SubmitDocuments", fmt.Sprintf("expected exactly one %s file", field))
		}
		f, err := headers[0].Open()
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "SubmitDocuments", err, "could not open "+field)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "SubmitDocuments", err, "could not read "+field)
		}
		files[docType] = models.UploadedFile{Filename: headers[0].Filename, Data: data}
	}
	return files, nil
}

// VerifyDocuments handles {"userId", "profile"}.
func VerifyDocuments(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var req models.VerifyDocumentsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		profile, err := models.ParseProfile(req.Profile)
		if err != nil {
			WriteError(w, errs.Wrap(errs.KindInput, "VerifyDocuments", err, ""))
			return
		}
		res, err := p.Verify(r.Context(), req.UserID, profile)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// ScanSalary handles {"userId"}.
func ScanSalary(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var req models.ScanSalaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		res, err := p.ScanSalary(r.Context(), req.UserID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// WriteError replies with the status code matching err's kind.
func WriteError(w http.ResponseWriter, err error) {
	code := errs.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "status", code)
	} else {
		slog.Warn("Request rejected", "error", err, "status", code)
	}
	WriteJSON(w, code, ErrorResponse{Status: "error", Kind: string(errs.KindOf(err)), Message: err.Error()})
}

func WriteJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// StatementUser returns the user a finalized statement object belongs to.
// Objects not named <userId>/statement.pdf are not statements.
func StatementUser(e models.GCSEvent) (string, bool) {
	dir, file := path.Split(e.Name)
	userID := strings.TrimSuffix(dir, "/")
	if file != "statement.pdf" || userID == "" || strings.Contains(userID, "/") {
		return "", false
	}
	return userID, true
}
