package models

import "time"

// Crate: shipping crate unit, same capability set as Panel but grouped
// into Routes instead of Batches.
type Crate struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SerialNumber string `gorm:"size:100;uniqueIndex;not null" json:"serialNumber"`
	Included     bool   `gorm:"not null;default:false" json:"included"`
	Received     *bool  `json:"received"`
	ReceivedAt   *time.Time `json:"receivedAt"`
	// no default tag: GORM drops zero-valued fields that carry one on
	// Create, which would silently store an inactive unit as active
	IsActive     bool       `gorm:"not null" json:"isActive"`
	DOM          *time.Time `json:"DOM"`
	DOE          *time.Time `json:"DOE"`
	PCM          string     `gorm:"size:100" json:"PCM"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
