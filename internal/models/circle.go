package models

// Circle is a bounded social group within which rides are offered and joined.
type Circle struct {
	BaseModel

	Name     string `gorm:"not null" json:"name"`
	SlugName string `gorm:"uniqueIndex;not null" json:"slug_name"`
	About    string `json:"about"`
	Picture  string `json:"picture"`

	IsPublic bool `gorm:"default:true" json:"is_public"`
	// IsLimited gates MembersLimit; a zero limit with IsLimited=false means unbounded.
	IsLimited    bool `gorm:"default:false" json:"is_limited"`
	MembersLimit int  `gorm:"default:0" json:"members_limit"`

	RidesTaken   int `gorm:"default:0" json:"rides_taken"`
	RidesOffered int `gorm:"default:0" json:"rides_offered"`
}

// Membership records a user's standing within one circle. Deactivation is a
// soft flag; rows are never deleted.
type Membership struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_circle" json:"-"`
	CircleID string `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_circle" json:"-"`

	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Circle *Circle `gorm:"foreignKey:CircleID" json:"-"`

	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	RemainingInvitations int `gorm:"default:0" json:"remaining_invitations"`
	InvitationsUsed      int `gorm:"default:0" json:"invitations_used"`

	RidesTaken   int `gorm:"default:0" json:"rides_taken"`
	RidesOffered int `gorm:"default:0" json:"rides_offered"`
}

// Invitation is a single-use code tied to a circle and the membership that
// issued it. UsedByID transitions from nil to a user exactly once.
type Invitation struct {
	BaseModel

	Code string `gorm:"uniqueIndex;not null" json:"code"`

	CircleID string `gorm:"type:uuid;not null;index" json:"-"`
	IssuedBy string `gorm:"type:uuid;not null;index" json:"issued_by"`
	UsedByID *string `gorm:"type:uuid" json:"used_by,omitempty"`

	Circle *Circle `gorm:"foreignKey:CircleID" json:"-"`
	UsedBy *User   `gorm:"foreignKey:UsedByID" json:"-"`
}
