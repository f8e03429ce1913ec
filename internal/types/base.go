package types

import "time"

// BaseModel carries the common audit fields shared by all persisted entities.
type BaseModel struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBaseModel returns a BaseModel stamped with the current UTC time.
func NewBaseModel(now time.Time) BaseModel {
	return BaseModel{
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}
