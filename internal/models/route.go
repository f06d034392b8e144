package models

import "time"

// Route: crates grouped into one delivery run, split per customer.
type Route struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:100;uniqueIndex;not null" json:"Name"`
	Deliveries []Delivery `gorm:"foreignKey:RouteID;constraint:OnDelete:CASCADE" json:"deliveries"`

	DispatchedBy     *uint      `json:"dispatchedById"`
	DispatchedByUser *User      `gorm:"foreignKey:DispatchedBy" json:"dispatchedBy,omitempty"`
	Dispatched       *time.Time `json:"dispatched"`
	Received         bool       `gorm:"not null;default:false" json:"received"`
	ReceivedAt       *time.Time `json:"receivedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Delivery: one customer's slice of a route. Crate references are
// non-owning (join table only), the delivery row itself is owned by
// the route and dies with it.
type Delivery struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	RouteID    uint    `gorm:"index;not null" json:"routeId"`
	CustomerID uint    `gorm:"index;not null" json:"customerId"`
	Customer   *User   `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Crates     []Crate `gorm:"many2many:delivery_crates" json:"crates"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
