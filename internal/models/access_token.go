package models

// AccessToken is the opaque bearer credential bound 1:1 to a user. Logging in
// again returns the same key rather than rotating it.
type AccessToken struct {
	BaseModel

	Key    string `gorm:"uniqueIndex;not null" json:"-"`
	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}
