package models

import "strings"

// Status is the single lifecycle vocabulary shared by citizens, admins and
// employees.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusAssigned   Status = "Assigned"
	StatusInProgress Status = "In Progress"
	StatusOnHold     Status = "On Hold"
	StatusResolved   Status = "Resolved"
	StatusUnresolved Status = "Unresolved"
)

// AllStatuses lists the vocabulary in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusAssigned,
	StatusInProgress,
	StatusOnHold,
	StatusResolved,
	StatusUnresolved,
}

var statusAliases = map[string]Status{
	"pending":     StatusPending,
	"assigned":    StatusAssigned,
	"in progress": StatusInProgress,
	"in-progress": StatusInProgress,
	"on hold":     StatusOnHold,
	"on-hold":     StatusOnHold,
	"resolved":    StatusResolved,
	"completed":   StatusResolved,
	"unresolved":  StatusUnresolved,
}

// ParseStatus normalizes client input. "Completed" is the employee-facing
// name for Resolved.
func ParseStatus(s string) (Status, bool) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusInProgress, StatusResolved, StatusUnresolved},
	StatusAssigned:   {StatusPending, StatusInProgress, StatusOnHold, StatusResolved, StatusUnresolved},
	StatusInProgress: {StatusOnHold, StatusResolved, StatusUnresolved, StatusAssigned},
	StatusOnHold:     {StatusInProgress, StatusResolved, StatusUnresolved, StatusAssigned},
	StatusResolved:   {StatusInProgress},
	StatusUnresolved: {StatusInProgress, StatusAssigned},
}

// CanTransition reports whether from -> to is in the transition table.
// Rewriting the current status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status closes out the task.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}
