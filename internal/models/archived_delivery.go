package models

import "time"

// ArchivedDelivery: append-only history of superseded route loads.
// One row per completed delivery cycle, keyed (non-uniquely) by route name.
type ArchivedDelivery struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RouteName string    `gorm:"size:100;index;not null" json:"routeName"`
	Snapshot  string    `gorm:"type:jsonb" json:"snapshot"` // deliveries as they were when the cycle ended
	CreatedAt time.Time `json:"createdAt"`
}
