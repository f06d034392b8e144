package models

import "time"

// Batch: panels grouped under one asset number. Panel references are
// non-owning: deleting a batch releases its panels, never removes them.
type Batch struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	AssetNumber string  `gorm:"size:100;uniqueIndex;not null" json:"AssetNumber"`
	Panels      []Panel `gorm:"many2many:batch_panels" json:"panels"`

	UserID *uint `gorm:"index" json:"userId"` // customer the batch belongs to
	User   *User `json:"user,omitempty"`

	DispatchedBy     *uint      `json:"dispatchedById"`
	DispatchedByUser *User      `gorm:"foreignKey:DispatchedBy" json:"dispatchedBy,omitempty"`
	Dispatched       *time.Time `json:"dispatched"`
	Received         bool       `gorm:"not null;default:false" json:"received"`
	ReceivedAt       *time.Time `json:"receivedAt"`

	PCM              string     `gorm:"size:100" json:"PCM"`
	DOM              *time.Time `json:"DOM"`
	WhLocation       string     `gorm:"size:255" json:"WhLocation"`
	DeliveryLocation string     `gorm:"size:255" json:"DeliveryLocation"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
