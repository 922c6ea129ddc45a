// Package session models a user's progress through the verification flow
// as an explicit state machine.
package session

import (
	"fmt"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
)

type State string

const (
	NeedsIdentity      State = "NeedsIdentity"
	IdentityPending    State = "IdentityPending"
	IdentityVerified   State = "IdentityVerified"
	NeedsIncomeDocs    State = "NeedsIncomeDocs"
	IncomePending      State = "IncomePending"
	IncomeVerified     State = "IncomeVerified"
	SalaryCheckPending State = "SalaryCheckPending"
	Done               State = "Done"
)

type Event string

const (
	SubmitIdentity   Event = "SubmitIdentity"
	IdentityPassed   Event = "IdentityPassed"
	IdentityRejected Event = "IdentityRejected"
	RequestIncome    Event = "RequestIncome"
	SubmitIncome     Event = "SubmitIncome"
	IncomePassed     Event = "IncomePassed"
	IncomeRejected   Event = "IncomeRejected"
	StartSalaryCheck Event = "StartSalaryCheck"
	SalaryChecked    Event = "SalaryChecked"
)

type transition struct {
	from  State
	event Event
}

// Re-submitting documents while a check is pending or after a rejection is
// allowed; the rejection events return the user to the upload step.
var transitions = map[transition]State{
	{NeedsIdentity, SubmitIdentity}:        IdentityPending,
	{IdentityPending, SubmitIdentity}:      IdentityPending,
	{IdentityPending, IdentityPassed}:      IdentityVerified,
	{IdentityPending, IdentityRejected}:    NeedsIdentity,
	{IdentityVerified, RequestIncome}:      NeedsIncomeDocs,
	{IdentityVerified, SubmitIncome}:       IncomePending,
	{NeedsIncomeDocs, SubmitIncome}:        IncomePending,
	{IncomePending, SubmitIncome}:          IncomePending,
	{IncomePending, IncomePassed}:          IncomeVerified,
	{IncomePending, IncomeRejected}:        NeedsIncomeDocs,
	{IncomeVerified, StartSalaryCheck}:     SalaryCheckPending,
	{SalaryCheckPending, SalaryChecked}:    Done,
	{SalaryCheckPending, StartSalaryCheck}: SalaryCheckPending,
}

var known = map[State]bool{
	NeedsIdentity: true, IdentityPending: true, IdentityVerified: true, NeedsIncomeDocs: true,
	IncomePending: true, IncomeVerified: true, SalaryCheckPending: true, Done: true,
}

// Parse validates a persisted state. An empty string is a new user.
func Parse(s string) (State, error) {
	if s == "" {
		return NeedsIdentity, nil
	}
	if !known[State(s)] {
		return "", errs.E(errs.KindState, "session.Parse", fmt.Sprintf("unknown state %q", s))
	}
	return State(s), nil
}

// Next returns the state reached from s by e.
func Next(s State, e Event) (State, error) {
	next, ok := transitions[transition{s, e}]
	if !ok {
		return s, errs.E(errs.KindState, "session.Next", fmt.Sprintf("event %s is not allowed in state %s", e, s))
	}
	return next, nil
}

// Machine tracks the current state of one user's flow.
type Machine struct {
	state State
}

func New(s State) *Machine {
	if s == "" {
		s = NeedsIdentity
	}
	return &Machine{state: s}
}

func (m *Machine) State() State { return m.state }

// Fire applies e. On an invalid transition the state is unchanged.
func (m *Machine) Fire(e Event) error {
	next, err := Next(m.state, e)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

// Can reports whether e is allowed in the current state.
func (m *Machine) Can(e Event) bool {
	_, ok := transitions[transition{m.state, e}]
	return ok
}

// SubmitEvent is the event a document submission fires for the given stage.
func SubmitEvent(stage models.Profile) (Event, error) {
	switch stage {
	case models.ProfileIdentity:
		return SubmitIdentity, nil
	case models.ProfileIncome:
		return SubmitIncome, nil
	}
	return "", errs.E(errs.KindInput, "session.SubmitEvent", fmt.Sprintf("unknown stage %q", stage))
}

// VerdictEvent is the event a verification outcome fires for the given stage.
func VerdictEvent(stage models.Profile, passed bool) (Event, error) {
	switch {
	case stage == models.ProfileIdentity && passed:
		return IdentityPassed, nil
	case stage == models.ProfileIdentity:
		return IdentityRejected, nil
	case stage == models.ProfileIncome && passed:
		return IncomePassed, nil
	case stage == models.ProfileIncome:
		return IncomeRejected, nil
	}
	return "", errs.E(errs.KindInput, "session.VerdictEvent", fmt.Sprintf("unknown stage %q", stage))
}
