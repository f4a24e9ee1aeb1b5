package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		u.ID = id
	}
	return nil
}

// UserSummary is the public projection of a User.
type UserSummary struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email}
}

func (u *User) Listing() UserSummary {
	createdAt := u.CreatedAt
	return UserSummary{ID: u.ID, Email: u.Email, CreatedAt: &createdAt}
}

// UserUpdate holds the optional fields of a user edit.
type UserUpdate struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil && u.Password == nil
}
