package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const pendingPageSize = 50

// IssueWorkflow drives an issue request from pending to approved or denied.
// Approval is the only path, besides catalog adjustments, that changes stock.
type IssueWorkflow struct {
	store     models.IssueStore
	ledger    *Ledger
	events    EventPublisher
	logger    *logrus.Logger
	issueLock *utils.KeyedMutex
	now       func() time.Time

	// PageSize is how many pending issues PendingIssues fetches per query.
	PageSize int
}

func NewIssueWorkflow(store models.IssueStore, ledger *Ledger, events EventPublisher, logger *logrus.Logger) *IssueWorkflow {
	if logger == nil {
		logger = config.GetLogger()
	}
	if events == nil {
		events = NewLogPublisher(logger)
	}
	return &IssueWorkflow{
		store:     store,
		ledger:    ledger,
		events:    events,
		logger:    logger,
		issueLock: utils.NewKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
		PageSize:  pendingPageSize,
	}
}

// Submit records a pending request. Stock is not held; availability is checked on approval.
func (w *IssueWorkflow) Submit(ctx context.Context, input *models.NewIssue, requestedBy int) (*models.IssueRequest, error) {
	ctx, span := tracer.Start(ctx, "IssueWorkflow.Submit")
	defer span.End()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	issue := &models.IssueRequest{
		ItemId:         input.ItemId,
		Quantity:       input.Quantity,
		FromLocationId: input.FromLocationId,
		ToLocationId:   input.ToLocationId,
		Note:           input.Note,
		RequestedBy:    requestedBy,
		CreatedAt:      w.now(),
	}
	if err := w.store.CreateIssue(ctx, issue); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("issue_id", issue.ID))

	w.log(ctx, issue, requestedBy).Info("issue submitted")
	w.publish(ctx, IssueEventSubmitted, issue, requestedBy)
	return issue, nil
}

// Approve moves the stock and marks the issue approved, or fails leaving both untouched.
// A short source fails with InsufficientStock and the issue stays pending.
func (w *IssueWorkflow) Approve(ctx context.Context, issueId int, approverId int) (*models.IssueRequest, error) {
	return w.resolve(ctx, issueId, approverId, models.IssueStatusApproved)
}

// Deny marks a pending issue denied without touching stock.
func (w *IssueWorkflow) Deny(ctx context.Context, issueId int, approverId int) (*models.IssueRequest, error) {
	return w.resolve(ctx, issueId, approverId, models.IssueStatusDenied)
}

func (w *IssueWorkflow) resolve(ctx context.Context, issueId int, approverId int, status models.IssueStatus) (*models.IssueRequest, error) {
	spanName := "IssueWorkflow.Approve"
	if status == models.IssueStatusDenied {
		spanName = "IssueWorkflow.Deny"
	}
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.Int("issue_id", issueId),
		attribute.Int("actor_id", approverId),
	))
	defer span.End()

	resolved, err := w.resolveLocked(ctx, issueId, approverId, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	w.log(ctx, resolved, approverId).Info("issue " + string(status))
	w.publish(ctx, eventTypeFor(status), resolved, approverId)
	return resolved, nil
}

// resolveLocked holds the issue lock for the whole transition. Approval moves stock through
// the ledger, whose store write also marks the issue resolved.
func (w *IssueWorkflow) resolveLocked(ctx context.Context, issueId int, approverId int, status models.IssueStatus) (*models.IssueRequest, error) {
	unlock := w.issueLock.Lock(fmt.Sprintf("issue:%d", issueId))
	defer unlock()

	issue, err := w.store.GetIssue(ctx, issueId)
	if err != nil {
		return nil, err
	}
	if issue.Status != models.IssueStatusPending {
		return nil, models.NewInvalidStateError(issue.ID, issue.Status)
	}

	if status == models.IssueStatusDenied {
		return w.store.ResolveIssue(ctx, issue.ID, status, approverId, w.now())
	}

	var resolved *models.IssueRequest
	err = w.ledger.commitTransfer(ctx, issue.ItemId, issue.FromLocationId, issue.ToLocationId, issue.Quantity, func(ctx context.Context) error {
		var err error
		resolved, err = w.store.ResolveIssue(ctx, issue.ID, status, approverId, w.now())
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			w.log(ctx, issue, approverId).Warn("approval rejected: " + err.Error())
		}
		return nil, err
	}
	return resolved, nil
}

func (w *IssueWorkflow) Get(ctx context.Context, issueId int) (*models.IssueRequest, error) {
	return w.store.GetIssue(ctx, issueId)
}

// PendingIssues yields pending issues oldest first, fetching PageSize rows at a time.
// Each range starts over from the oldest pending issue. The sequence stops after yielding an error.
func (w *IssueWorkflow) PendingIssues(ctx context.Context) iter.Seq2[*models.IssueRequest, error] {
	return func(yield func(*models.IssueRequest, error) bool) {
		pending := models.IssueStatusPending
		pageSize := w.PageSize
		if pageSize <= 0 {
			pageSize = pendingPageSize
		}
		var after *models.IssueCursor
		for {
			page, err := w.store.ListIssues(ctx, models.IssueFilter{
				Status:  &pending,
				OrderBy: models.IssueOrderCreated,
				After:   after,
				Limit:   pageSize,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, issue := range page {
				if !yield(issue, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor := page[len(page)-1].CursorFor(models.IssueOrderCreated)
			after = &cursor
		}
	}
}

// ListPending collects PendingIssues, stopping after limit items when limit > 0.
func (w *IssueWorkflow) ListPending(ctx context.Context, limit int) ([]*models.IssueRequest, error) {
	issues := []*models.IssueRequest{}
	for issue, err := range w.PendingIssues(ctx) {
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
		if limit > 0 && len(issues) >= limit {
			break
		}
	}
	return issues, nil
}

// PendingPage returns up to limit pending issues after the cursor, oldest first, and the
// cursor of the next page, which is nil when nothing follows.
func (w *IssueWorkflow) PendingPage(ctx context.Context, after *models.IssueCursor, limit int) ([]*models.IssueRequest, *models.IssueCursor, error) {
	if limit <= 0 || limit > models.MaxPageLimit {
		limit = models.MaxPageLimit
	}
	pending := models.IssueStatusPending
	page, err := w.store.ListIssues(ctx, models.IssueFilter{
		Status:  &pending,
		OrderBy: models.IssueOrderCreated,
		After:   after,
		Limit:   limit + 1,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(page) <= limit {
		return page, nil, nil
	}
	page = page[:limit]
	next := page[limit-1].CursorFor(models.IssueOrderCreated)
	return page, &next, nil
}

func (w *IssueWorkflow) log(ctx context.Context, issue *models.IssueRequest, actorId int) *logrus.Entry {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return w.logger.WithFields(logrus.Fields{
		"field":            "IssueWorkflow",
		"issue_id":         issue.ID,
		"item_id":          issue.ItemId,
		"from_location_id": issue.FromLocationId,
		"to_location_id":   issue.ToLocationId,
		"quantity":         issue.Quantity,
		"status":           issue.Status,
		"actor_id":         actorId,
		"correlation_id":   correlationId,
	})
}

// publish runs after the state change committed; a failed publish never undoes it.
func (w *IssueWorkflow) publish(ctx context.Context, eventType string, issue *models.IssueRequest, actorId int) {
	event := NewIssueEvent(ctx, eventType, issue, actorId)
	if err := w.events.Publish(ctx, event); err != nil {
		config.LogError(w.logger, "issueWorkflow.go", "publish", "Publish "+eventType, event, err)
	}
}
