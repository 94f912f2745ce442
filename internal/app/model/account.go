package model

import (
	"strings"
	"time"
)

type AccountRole string

const (
	RoleMember  AccountRole = "member"
	RoleOfficer AccountRole = "officer" // council officer
	RoleAdmin   AccountRole = "admin"
)

// Account is the credential record for one member. The reset grant lives on
// the same row so that issuing one overwrites the previous grant.
type Account struct {
	ID                uint        `gorm:"primarykey" json:"id"`
	Email             string      `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash      string      `gorm:"not null" json:"-"`
	Name              string      `gorm:"size:255;not null" json:"name"`
	StudentNumber     *string     `gorm:"size:32;uniqueIndex" json:"student_number,omitempty"`
	Role              AccountRole `gorm:"type:varchar(20);default:'member'" json:"role"`
	ResetTokenHash    *string     `gorm:"size:64;uniqueIndex" json:"-"` // SHA-256 of the issued reset token
	ResetExpiresAt    *time.Time  `json:"-"`
	PasswordChangedAt *time.Time  `json:"password_changed_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasActiveResetGrant reports whether a grant is set and not yet expired at now.
func (a *Account) HasActiveResetGrant(now time.Time) bool {
	return a.ResetTokenHash != nil && a.ResetExpiresAt != nil && now.Before(*a.ResetExpiresAt)
}

// AccountDescriptor is the public view of an account returned to clients.
type AccountDescriptor struct {
	ID            uint        `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	StudentNumber string      `json:"student_number,omitempty"`
	Role          AccountRole `json:"role"`
}

func (a *Account) Descriptor() AccountDescriptor {
	d := AccountDescriptor{
		ID:    a.ID,
		Email: a.Email,
		Name:  a.Name,
		Role:  a.Role,
	}
	if a.StudentNumber != nil {
		d.StudentNumber = *a.StudentNumber
	}
	return d
}

// NormalizeEmail trims and lowercases an identity before any lookup or write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
