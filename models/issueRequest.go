package models

import (
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
)

// IssueRequest moves Quantity of an item between two locations once approved.
// Rows are never deleted; resolution fields are written exactly once.
type IssueRequest struct {
	ID             int         `gorm:"primary_key" json:"id"`
	ItemId         int         `gorm:"index;not null" json:"item_id"`
	Quantity       int         `gorm:"not null" json:"quantity"`
	FromLocationId int         `gorm:"index;not null" json:"from_location_id"`
	ToLocationId   int         `gorm:"index;not null" json:"to_location_id"`
	Status         IssueStatus `gorm:"size:20;not null;default:pending;index:idx_issue_status_created,priority:1" json:"status"`
	Note           string      `gorm:"size:500" json:"note"`
	RequestedBy    int         `gorm:"index;not null" json:"requested_by"`
	ResolvedBy     *int        `json:"resolved_by"`
	ResolvedAt     *time.Time  `gorm:"index" json:"resolved_at"`
	CreatedAt      time.Time   `gorm:"not null;index:idx_issue_status_created,priority:2" json:"created_at"`
}

type NewIssue struct {
	ItemId         int    `json:"item_id" validate:"required,gt=0"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	FromLocationId int    `json:"from_location_id" validate:"required,gt=0"`
	ToLocationId   int    `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationId"`
	Note           string `json:"note" validate:"max=500"`
}

func (input *NewIssue) Validate() error {
	if fields := utils.ValidateStruct(input); len(fields) > 0 {
		return NewValidationError("invalid issue request", fields)
	}
	return nil
}

// IssueFilter narrows issue listings. From and To bound created_at inclusively.
// After continues a listing past the given cursor in the chosen order.
type IssueFilter struct {
	Status  *IssueStatus
	ItemId  *int
	From    *time.Time
	To      *time.Time
	OrderBy IssueOrder
	After   *IssueCursor
	Limit   int
}

// IssueCursor is the keyset position (timestamp, id) of the last row read.
type IssueCursor struct {
	At time.Time
	ID int
}

func (issue *IssueRequest) CursorFor(order IssueOrder) IssueCursor {
	if order == IssueOrderResolved && issue.ResolvedAt != nil {
		return IssueCursor{At: *issue.ResolvedAt, ID: issue.ID}
	}
	return IssueCursor{At: issue.CreatedAt, ID: issue.ID}
}

// sortKey returns the timestamp the issue is ordered by; ok is false when it has none.
func (issue *IssueRequest) sortKey(order IssueOrder) (time.Time, bool) {
	if order == IssueOrderResolved {
		if issue.ResolvedAt == nil {
			return time.Time{}, false
		}
		return *issue.ResolvedAt, true
	}
	return issue.CreatedAt, true
}
