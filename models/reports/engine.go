package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source is the read side of the store the reports aggregate over.
type Source interface {
	GetItem(ctx context.Context, id int) (*models.Item, error)
	GetItemsByIds(ctx context.Context, ids []int) ([]*models.Item, error)
	GetLocationsByIds(ctx context.Context, ids []int) ([]*models.Location, error)
	ListBalances(ctx context.Context, filter models.BalanceFilter) ([]*models.StockBalance, error)
	ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.IssueRequest, error)
}

// NameResolver maps ids to display names. Unknown ids are absent from the result.
type NameResolver interface {
	ItemNames(ctx context.Context, ids []int) (map[int]string, error)
	LocationNames(ctx context.Context, ids []int) (map[int]string, error)
}

// Engine builds read-only views; none of its methods write.
type Engine struct {
	source Source
	names  NameResolver
	logger *logrus.Logger
}

func NewEngine(source Source, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{source: source, names: sourceNames{source}, logger: logger}
}

// WithNames returns a copy of e that resolves names through r, e.g. a request's dataloaders.
func (e *Engine) WithNames(r NameResolver) *Engine {
	if r == nil {
		return e
	}
	c := *e
	c.names = r
	return &c
}

type InventoryRow struct {
	ItemId       int    `json:"item_id"`
	ItemName     string `json:"item_name"`
	LocationId   int    `json:"location_id"`
	LocationName string `json:"location_name"`
	Quantity     int    `json:"quantity"`
	// IssuedQuantity is the item's approved issue total across all locations.
	IssuedQuantity int `json:"issued_quantity"`
}

type IssueRow struct {
	*models.IssueRequest
	ItemName         string `json:"item_name"`
	FromLocationName string `json:"from_location_name"`
	ToLocationName   string `json:"to_location_name"`
}

// IssueReportFilter bounds created_at inclusively.
type IssueReportFilter struct {
	Status *models.IssueStatus
	From   *time.Time
	To     *time.Time
}

// InventorySnapshot lists every (item, location) balance ordered by item then location.
func (e *Engine) InventorySnapshot(ctx context.Context) ([]*InventoryRow, error) {
	defer e.logSlow(ctx, "inventory_snapshot", time.Now(), nil)

	var balances []*models.StockBalance
	var issued map[int]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = e.source.ListBalances(gctx, models.BalanceFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		issued, err = e.issuedByItem(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	itemIds := make([]int, 0, len(balances))
	locationIds := make([]int, 0, len(balances))
	for _, balance := range balances {
		itemIds = append(itemIds, balance.ItemId)
		locationIds = append(locationIds, balance.LocationId)
	}
	itemNames, locationNames, err := e.resolve(ctx, itemIds, locationIds)
	if err != nil {
		return nil, err
	}

	rows := make([]*InventoryRow, 0, len(balances))
	for _, balance := range balances {
		rows = append(rows, &InventoryRow{
			ItemId:         balance.ItemId,
			ItemName:       itemNames[balance.ItemId],
			LocationId:     balance.LocationId,
			LocationName:   locationNames[balance.LocationId],
			Quantity:       balance.Quantity,
			IssuedQuantity: issued[balance.ItemId],
		})
	}
	return rows, nil
}

// issuedByItem sums approved issue quantities per item.
func (e *Engine) issuedByItem(ctx context.Context) (map[int]int, error) {
	approved := models.IssueStatusApproved
	issues, err := e.source.ListIssues(ctx, models.IssueFilter{Status: &approved})
	if err != nil {
		return nil, err
	}
	totals := make(map[int]int)
	for _, issue := range issues {
		totals[issue.ItemId] += issue.Quantity
	}
	return totals, nil
}

// IssueReport lists issues in creation order, ties by id.
func (e *Engine) IssueReport(ctx context.Context, filter IssueReportFilter) ([]*IssueRow, error) {
	defer e.logSlow(ctx, "issue_report", time.Now(), logrus.Fields{"status": filter.Status})

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, models.NewValidationError("invalid status", map[string]string{"status": "oneof"})
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, models.NewValidationError("invalid date range", map[string]string{"to": "gtefield"})
	}
	issues, err := e.source.ListIssues(ctx, models.IssueFilter{
		Status:  filter.Status,
		From:    filter.From,
		To:      filter.To,
		OrderBy: models.IssueOrderCreated,
	})
	if err != nil {
		return nil, err
	}
	return e.issueRows(ctx, issues)
}

// ItemMovementReport lists the approved issues of one item in the order stock moved.
// A deleted item keeps its trail; only an id with neither a row nor history is NotFound.
func (e *Engine) ItemMovementReport(ctx context.Context, itemId int) ([]*IssueRow, error) {
	defer e.logSlow(ctx, "item_movement_report", time.Now(), logrus.Fields{"item_id": itemId})

	approved := models.IssueStatusApproved
	issues, err := e.source.ListIssues(ctx, models.IssueFilter{
		Status:  &approved,
		ItemId:  &itemId,
		OrderBy: models.IssueOrderResolved,
	})
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		if _, err := e.source.GetItem(ctx, itemId); err != nil {
			return nil, err
		}
	}
	return e.issueRows(ctx, issues)
}

func (e *Engine) issueRows(ctx context.Context, issues []*models.IssueRequest) ([]*IssueRow, error) {
	itemIds := make([]int, 0, len(issues))
	locationIds := make([]int, 0, 2*len(issues))
	for _, issue := range issues {
		itemIds = append(itemIds, issue.ItemId)
		locationIds = append(locationIds, issue.FromLocationId, issue.ToLocationId)
	}
	itemNames, locationNames, err := e.resolve(ctx, itemIds, locationIds)
	if err != nil {
		return nil, err
	}

	rows := make([]*IssueRow, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, &IssueRow{
			IssueRequest:     issue,
			ItemName:         itemNames[issue.ItemId],
			FromLocationName: locationNames[issue.FromLocationId],
			ToLocationName:   locationNames[issue.ToLocationId],
		})
	}
	return rows, nil
}

// resolve looks up item and location names concurrently.
func (e *Engine) resolve(ctx context.Context, itemIds, locationIds []int) (map[int]string, map[int]string, error) {
	var itemNames, locationNames map[int]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		itemNames, err = e.names.ItemNames(gctx, uniqueIds(itemIds))
		return err
	})
	g.Go(func() error {
		var err error
		locationNames, err = e.names.LocationNames(gctx, uniqueIds(locationIds))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return itemNames, locationNames, nil
}
