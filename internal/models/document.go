package models

import (
	"fmt"
	"time"
)

// DocType tags a document kind. It selects the extraction prompt and names the
// section the extracted record is stored under.
type DocType string

const (
	DocPAN           DocType = "pan"
	DocAadhar        DocType = "aadhar"
	DocBankStatement DocType = "bankstatement"
	DocITR           DocType = "itr"
	DocForm16        DocType = "form16"
)

// AllDocTypes lists every supported document type in submission order.
var AllDocTypes = []DocType{DocPAN, DocAadhar, DocBankStatement, DocITR, DocForm16}

// ParseDocType validates a raw tag.
func ParseDocType(s string) (DocType, error) {
	for _, t := range AllDocTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// DocumentRecord is the field map extracted from one document. It is always
// replaced wholesale, never patched.
type DocumentRecord map[string]any

// UploadedFile is a user-submitted file as received from the caller.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// Persisted top-level keys of a user document.
const (
	FieldUserID      = "userId"
	FieldLastUpdated = "lastUpdated"
	FieldSession     = "session"
)

// UserRecord is one user's accumulated document set.
type UserRecord struct {
	UserID      string
	LastUpdated time.Time
	// Sections holds the per-document-type records that are present.
	Sections map[string]DocumentRecord
	// Extra holds any other top-level fields written through MergeFields.
	Extra map[string]any
}

// Section returns the named section, or nil when absent.
func (u *UserRecord) Section(name string) DocumentRecord {
	if u == nil || u.Sections == nil {
		return nil
	}
	return u.Sections[name]
}

// Has reports whether every listed document type is present.
func (u *UserRecord) Has(types ...DocType) bool {
	for _, t := range types {
		if u.Section(string(t)) == nil {
			return false
		}
	}
	return true
}

// PageText is the raw text of one PDF page; Number is 1-based.
type PageText struct {
	Number int
	Text   string
}

// TransactionObservation is the scanner's verbatim answer for one page.
type TransactionObservation struct {
	PageNumber int    `json:"pageNumber"`
	Response   string `json:"response"`
}

// StatementChunk is one embedded slice of a user's bank statement.
type StatementChunk struct {
	UserID    string    `firestore:"userId" json:"userId"`
	ChunkID   int       `firestore:"chunkId" json:"chunkId"`
	Text      string    `firestore:"text" json:"text"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	Distance  float64   `firestore:"-" json:"distance,omitempty"`
}
