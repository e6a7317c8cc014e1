package reports

import (
	"context"
	"slices"
)

// sourceNames resolves names straight from the store, one query per kind.
type sourceNames struct {
	source Source
}

func (n sourceNames) ItemNames(ctx context.Context, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	items, err := n.source.GetItemsByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		names[item.ID] = item.Name
	}
	return names, nil
}

func (n sourceNames) LocationNames(ctx context.Context, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	locations, err := n.source.GetLocationsByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, location := range locations {
		names[location.ID] = location.Name
	}
	return names, nil
}

func uniqueIds(ids []int) []int {
	return slices.Compact(slices.Sorted(slices.Values(ids)))
}
