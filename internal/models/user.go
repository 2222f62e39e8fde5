package models

// User describes a platform account. Accounts begin unverified and become
// verified only through a valid email-confirmation token.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`
	IsActive   bool `gorm:"default:true" json:"is_active"`
	IsClient   bool `gorm:"default:true" json:"-"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}

// Profile holds per-user aggregate ride counters. Created atomically with its User.
type Profile struct {
	BaseModel

	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"-"`

	Biography string `json:"biography"`
	Picture   string `json:"picture"`

	RidesTaken   int `gorm:"default:0" json:"rides_taken"`
	RidesOffered int `gorm:"default:0" json:"rides_offered"`
}
