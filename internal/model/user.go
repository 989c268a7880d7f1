package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the identity + credential + session record. Username is stored
// lowercase; uniqueness of username and email is enforced by the database.
// RefreshToken holds the one trusted refresh token for the user (single
// active session); nil means no session.
type User struct {
	gorm.Model
	Username     string         `gorm:"column:username;uniqueIndex;not null"`
	Email        string         `gorm:"column:email;uniqueIndex;not null"`
	FullName     string         `gorm:"column:full_name;not null"`
	Password     string         `gorm:"column:password;not null"`
	Avatar       string         `gorm:"column:avatar;not null"`
	AvatarID     string         `gorm:"column:avatar_id;not null"`
	CoverImage   string         `gorm:"column:cover_image"`
	CoverImageID string         `gorm:"column:cover_image_id"`
	RefreshToken *string        `gorm:"column:refresh_token"`
	WatchHistory datatypes.JSON `gorm:"column:watch_history"`
}
