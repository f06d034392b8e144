package models

import "time"

// Panel: individually tracked solar panel unit.
// Received is tri-state: nil = not yet evaluated at destination.
type Panel struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SerialNumber string `gorm:"size:100;uniqueIndex;not null" json:"serialNumber"`
	Included     bool   `gorm:"not null;default:false" json:"included"`
	Received     *bool  `json:"received"`
	ReceivedAt   *time.Time `json:"receivedAt"`
	// no default tag: GORM drops zero-valued fields that carry one on
	// Create, which would silently store an inactive unit as active
	IsActive     bool       `gorm:"not null" json:"isActive"`
	DOM          *time.Time `json:"DOM"` // date of manufacture
	DOE          *time.Time `json:"DOE"` // date of expiry
	PCM          string     `gorm:"size:100" json:"PCM"` // production cycle marker, free-form
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
