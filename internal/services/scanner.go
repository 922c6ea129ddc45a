package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/prompts"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// TextCompleter is a single system + user text model exchange.
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Scanner asks the text model, page by page, for employer salary credits.
type Scanner struct {
	model       TextCompleter
	concurrency int
}

func NewScanner(model TextCompleter, concurrency int) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{model: model, concurrency: concurrency}
}

// Scan returns one observation per page in input order, numbered from 1 by
// position. Any failed page aborts the whole scan.
func (s *Scanner) Scan(ctx context.Context, pages []models.PageText) ([]models.TransactionObservation, error) {
	slog.Info("Starting statement scan.", "pageCount", len(pages), "concurrency", s.concurrency)
	results := make([]models.TransactionObservation, len(pages))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, page := range pages {
		eg.Go(func() error {
			user := fmt.Sprintf(prompts.BankPageTemplate, prompts.BankPageQuery, page.Text)
			answer, err := s.model.Complete(gctx, prompts.BankSystemPrompt, user)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			results[i] = models.TransactionObservation{PageNumber: i + 1, Response: answer}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		slog.Error("Statement scan failed", "error", err)
		return nil, errs.Wrap(errs.KindModel, "Scan", err, "statement scan aborted")
	}
	slog.Info("Statement scan complete.", "pageCount", len(pages))
	return results, nil
}

// ReadPages extracts the plain text of every page of a PDF. Page numbers are
// 1-based; empty pages are kept so numbering matches the document.
func ReadPages(data []byte) ([]models.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.Wrap(errs.KindInput, "ReadPages", err, "could not open PDF")
	}

	pages := make([]models.PageText, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, models.PageText{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "ReadPages", err, fmt.Sprintf("could not read page %d", i))
		}
		pages = append(pages, models.PageText{Number: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}
