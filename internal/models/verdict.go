package models

import "fmt"

// Profile selects the comparison protocol the reconciliation agent runs.
type Profile string

const (
	ProfileIdentity Profile = "identity"
	ProfileIncome   Profile = "income"
)

// ParseProfile validates a raw profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileIdentity, ProfileIncome:
		return Profile(s), nil
	}
	return "", fmt.Errorf("unknown verification profile %q", s)
}

// RequiredDocs lists the sections a profile compares.
func (p Profile) RequiredDocs() []DocType {
	switch p {
	case ProfileIdentity:
		return []DocType{DocPAN, DocAadhar, DocBankStatement}
	case ProfileIncome:
		return []DocType{DocPAN, DocITR, DocForm16}
	}
	return nil
}

// SubmittedDocs lists the documents uploaded in the stage of the same name.
// The income stage reuses the PAN card from the identity stage.
func (p Profile) SubmittedDocs() []DocType {
	if p == ProfileIncome {
		return []DocType{DocITR, DocForm16}
	}
	return p.RequiredDocs()
}

// Outcome is the enumerated result of a reconciliation.
type Outcome string

const (
	OutcomePass      Outcome = "PASS"
	OutcomeFail      Outcome = "FAIL"
	OutcomeAmbiguous Outcome = "AMBIGUOUS"
	OutcomeTimeout   Outcome = "TIMEOUT"
)

// Verdict is the reconciliation agent's decision.
type Verdict struct {
	Profile       Profile `json:"profile"`
	Outcome       Outcome `json:"outcome"`
	Justification string  `json:"justification"`
	// Report is the model's full human-readable answer.
	Report string `json:"report,omitempty"`
	// Marker is set when the outcome was derived from a legacy marker string
	// rather than the structured answer.
	Marker string `json:"marker,omitempty"`
	// Steps counts model turns, tool round-trips included.
	Steps int `json:"steps"`
}

// Passed reports whether the verdict allows the flow to progress.
func (v *Verdict) Passed() bool {
	return v != nil && v.Outcome == OutcomePass
}
