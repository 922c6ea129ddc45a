package models

// These structs define the JSON payloads exchanged between the HTTP functions
// and their callers (the web front end or a Cloud Workflow).

// SubmitDocumentsResponse is the output of the document-intake function.
type SubmitDocumentsResponse struct {
	Status    string              `json:"status"`
	UserID    string              `json:"userId"`
	Stage     Profile             `json:"stage"`
	Sections  []string            `json:"sections"`
	Warnings  map[string][]string `json:"warnings,omitempty"`
	Anomalies []Anomaly           `json:"anomalies,omitempty"`
	Session   string              `json:"session"`
}

// Anomaly reports an identifying number that is also stored for other users.
type Anomaly struct {
	Path       string   `json:"path"`
	Value      string   `json:"value"`
	OtherUsers []string `json:"otherUsers"`
}

// VerifyDocumentsRequest is the input for the document-verifier function.
type VerifyDocumentsRequest struct {
	UserID  string `json:"userId"`
	Profile string `json:"profile"`
}

// VerifyDocumentsResponse is the output of the document-verifier function.
type VerifyDocumentsResponse struct {
	Status  string   `json:"status"`
	Verdict *Verdict `json:"verdict"`
	Session string   `json:"session"`
}

// ScanSalaryRequest is the input for the salary-scanner function.
type ScanSalaryRequest struct {
	UserID string `json:"userId"`
}

// ScanSalaryResponse is the output of the salary-scanner function.
type ScanSalaryResponse struct {
	Status       string                   `json:"status"`
	Observations []TransactionObservation `json:"observations"`
	Session      string                   `json:"session"`
}

// GCSEvent is the data payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
