package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"date_joined"`
	UpdatedAt    time.Time `json:"updated_at"`
	Username     string    `gorm:"uniqueIndex;not null;size:150" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null;size:254" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Phone        string    `gorm:"size:15" json:"phone"`
	City         string    `gorm:"size:100" json:"city"`
	Bio          string    `gorm:"type:text" json:"bio"`
	Language     string    `gorm:"size:10;not null" json:"language"`
	CompanyName  string    `gorm:"size:255" json:"company_name"`
	IsVerified   bool      `gorm:"not null" json:"is_verified"`
	Roles        RoleSet   `gorm:"not null" json:"roles"`

	ClientProfile     *ClientProfile     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ContractorProfile *ContractorProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// ClientProfile holds attributes only meaningful for accounts with the
// client role.
type ClientProfile struct {
	ID                  uint      `gorm:"primaryKey" json:"-"`
	CreatedAt           time.Time `json:"-"`
	UpdatedAt           time.Time `json:"-"`
	UserID              uint      `gorm:"uniqueIndex;not null" json:"-"`
	ProjectHistoryCount uint      `gorm:"not null" json:"project_history_count"`
}

// ContractorProfile holds the public contractor attributes.
type ContractorProfile struct {
	ID             uint             `gorm:"primaryKey" json:"-"`
	CreatedAt      time.Time        `json:"-"`
	UpdatedAt      time.Time        `json:"-"`
	UserID         uint             `gorm:"uniqueIndex;not null" json:"-"`
	Specialties    string           `gorm:"size:255" json:"specialties"`
	HourlyRate     *decimal.Decimal `gorm:"type:numeric(8,2)" json:"hourly_rate"`
	Availability   string           `gorm:"size:100" json:"availability"`
	Certifications string           `gorm:"type:text" json:"certifications"`
}

func (u *User) DisplayName() string {
	if u.CompanyName != "" {
		return u.CompanyName
	}
	return u.Username
}

func (u *User) IsClient() bool {
	return u.Roles.Has(RoleClient)
}

func (u *User) IsContractor() bool {
	return u.Roles.Has(RoleContractor)
}

func (u *User) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Roles.Has(r) {
			return true
		}
	}
	return false
}
