package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
)

type Location struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null;index" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Capacity     int       `gorm:"not null;default:0" json:"capacity"`
	ContactPhone string    `gorm:"size:20" json:"contact_phone"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLocation struct {
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description" validate:"max=2000"`
	Capacity     int    `json:"capacity" validate:"gte=0"`
	ContactPhone string `json:"contact_phone" validate:"max=30"`
}

func (input *NewLocation) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	fields := utils.ValidateStruct(input)
	if phone, err := normalizeContactPhone(input.ContactPhone); err != nil {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["contact_phone"] = "phone"
	} else {
		input.ContactPhone = phone
	}
	if len(fields) > 0 {
		return NewValidationError("invalid location", fields)
	}
	return nil
}

// UpdateLocation is a partial update; nil fields are left as they are.
type UpdateLocation struct {
	Name         *string `json:"name" validate:"omitempty,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	Capacity     *int    `json:"capacity" validate:"omitempty,gte=0"`
	ContactPhone *string `json:"contact_phone" validate:"omitempty,max=30"`
}

func (input *UpdateLocation) Validate() error {
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
	if input.ContactPhone != nil {
		if phone, err := normalizeContactPhone(*input.ContactPhone); err != nil {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["contact_phone"] = "phone"
		} else {
			input.ContactPhone = &phone
		}
	}
	if len(fields) > 0 {
		return NewValidationError("invalid location", fields)
	}
	return nil
}

func (input *UpdateLocation) Apply(location *Location) {
	if input.Name != nil {
		location.Name = *input.Name
	}
	if input.Description != nil {
		location.Description = *input.Description
	}
	if input.Capacity != nil {
		location.Capacity = *input.Capacity
	}
	if input.ContactPhone != nil {
		location.ContactPhone = *input.ContactPhone
	}
}

// empty stays empty
func normalizeContactPhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	return utils.NormalizePhoneNumber(phone, utils.DefaultPhoneRegion())
}

type LocationFilter struct {
	PageRequest
	Search string
}
