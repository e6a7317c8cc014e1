package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
)

// Item.Quantity is the sum of the item's stock balances and is only written together with them.
type Item struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null;index" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Quantity     int       `gorm:"not null;default:0" json:"quantity"`
	LocationId   *int      `gorm:"index" json:"location_id"`
	ImageUrl     string    `gorm:"size:512" json:"image_url"`
	ThumbnailUrl string    `gorm:"size:512" json:"thumbnail_url"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	LocationId  *int   `json:"location_id" validate:"omitempty,gt=0"`
}

// Validate trims the input and checks it. Opening stock needs a location to sit at.
func (input *NewItem) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	fields := utils.ValidateStruct(input)
	if input.Quantity > 0 && input.LocationId == nil {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["location_id"] = "required_with_quantity"
	}
	if len(fields) > 0 {
		return NewValidationError("invalid item", fields)
	}
	return nil
}

// UpdateItem is a partial update; nil fields are left as they are.
// Quantity sets the absolute balance at LocationId, or at the item's home location.
type UpdateItem struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Quantity    *int    `json:"quantity" validate:"omitempty,gte=0"`
	LocationId  *int    `json:"location_id" validate:"omitempty,gt=0"`
}

func (input *UpdateItem) Validate() error {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	fields := utils.ValidateStruct(input)
	if input.Name != nil && *input.Name == "" {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["name"] = "required"
	}
	if len(fields) > 0 {
		return NewValidationError("invalid item", fields)
	}
	return nil
}

// Changes converts the request into the store's partial update.
func (input *UpdateItem) Changes() ItemChanges {
	return ItemChanges{
		Name:        input.Name,
		Description: input.Description,
		LocationId:  input.LocationId,
		Quantity:    input.Quantity,
	}
}

// ItemChanges is a partial item update applied in one store transaction. Nil fields are
// left as they are. Quantity becomes the balance at the resulting LocationId.
type ItemChanges struct {
	Name         *string
	Description  *string
	LocationId   *int
	ImageUrl     *string
	ThumbnailUrl *string
	Quantity     *int
}

// quantityLocation resolves where Quantity applies given the item's current home.
func (c ItemChanges) quantityLocation(current *int) (int, error) {
	if *c.Quantity < 0 {
		return 0, NewValidationError("invalid quantity", map[string]string{"quantity": "gte"})
	}
	target := current
	if c.LocationId != nil {
		target = c.LocationId
	}
	if target == nil {
		return 0, NewValidationError("a location is required to set quantity", map[string]string{"location_id": "required_with_quantity"})
	}
	return *target, nil
}

type ItemFilter struct {
	PageRequest
	Search string
}
