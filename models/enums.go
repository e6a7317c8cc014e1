package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type IssueStatus string

const (
	IssueStatusPending  IssueStatus = "pending"
	IssueStatusApproved IssueStatus = "approved"
	IssueStatusDenied   IssueStatus = "denied"
)

// ParseIssueStatus accepts any letter case.
func ParseIssueStatus(s string) (IssueStatus, error) {
	status := IssueStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", NewValidationError("invalid issue status", map[string]string{"status": "oneof"})
	}
	return status, nil
}

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusApproved, IssueStatusDenied:
		return true
	}
	return false
}

// Approved and Denied accept no further transition.
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusApproved || s == IssueStatusDenied
}

func (s *IssueStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("issue status must be string")
	}
	status, err := ParseIssueStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

type UserRole string

const (
	UserRoleUser    UserRole = "user"
	UserRoleManager UserRole = "manager"
	UserRoleAdmin   UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleManager, UserRoleAdmin:
		return true
	}
	return false
}

func (r UserRole) CanResolveIssues() bool {
	return r == UserRoleManager || r == UserRoleAdmin
}

func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin
}

// IssueOrder picks the timestamp issue listings are keyed on.
type IssueOrder string

const (
	IssueOrderCreated  IssueOrder = "created"
	IssueOrderResolved IssueOrder = "resolved"
)
