package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
)

// buildPDF renders a minimal PDF with one line of Helvetica text per page.
func buildPDF(pages []string) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	escaper := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	for i, text := range pages {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escaper.Replace(text))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

type savedObject struct {
	Name        string
	ContentType string
	Data        []byte
}

// fakeObjectStore records every Save call.
type fakeObjectStore struct {
	mu    sync.Mutex
	saved []savedObject
	err   error
}

func (f *fakeObjectStore) Save(_ context.Context, objectName, contentType string, r io.Reader, _ bool) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedObject{Name: objectName, ContentType: contentType, Data: data})
	return "gs://test-bucket/" + objectName, nil
}

func (f *fakeObjectStore) Read(_ context.Context, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].Name == objectName {
			return f.saved[i].Data, nil
		}
	}
	return nil, fmt.Errorf("object %s: %w", objectName, storage.ErrObjectNotExist)
}

// fakeGenerator answers every call with the same text.
type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, parts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return textResponse(f.reply), nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

// fakePrompts serves a fixed prompt for every tag.
type fakePrompts map[string]string

func (f fakePrompts) Get(tag string) (string, error) {
	if p, ok := f[tag]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown tag %q", tag)
}
