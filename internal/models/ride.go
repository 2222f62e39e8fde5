package models

import "time"

// Ride is a scheduled trip with limited seats, owned by one circle.
// available_seats plus the passenger count always equals the seats the ride
// was created with; both mutate only inside ride-event transactions.
type Ride struct {
	BaseModel

	OfferedByID string `gorm:"type:uuid;not null;index" json:"-"`
	OfferedInID string `gorm:"type:uuid;not null;index" json:"-"`

	OfferedBy *User   `gorm:"foreignKey:OfferedByID" json:"offered_by,omitempty"`
	OfferedIn *Circle `gorm:"foreignKey:OfferedInID" json:"-"`

	Passengers []User `gorm:"many2many:ride_passengers;" json:"passengers,omitempty"`

	AvailableSeats int `gorm:"not null" json:"available_seats"`

	Comments string `json:"comments"`

	DepartureLocation string    `gorm:"not null" json:"departure_location"`
	DepartureDate     time.Time `gorm:"not null;index" json:"departure_date"`
	ArrivalLocation   string    `gorm:"not null" json:"arrival_location"`
	ArrivalDate       time.Time `gorm:"not null;index" json:"arrival_date"`

	Rating   *float64 `json:"rating"`
	IsActive bool     `gorm:"default:true;index" json:"is_active"`
}
