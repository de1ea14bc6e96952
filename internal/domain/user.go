package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email       string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	Role        string    `gorm:"size:20" json:"role"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (User) TableName() string {
	return "users"
}

// Flashcard vocabulary card, optionally sold with a price
type Flashcard struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64            `gorm:"index" json:"user_id"`
	Category    string           `gorm:"size:100;index" json:"category"`
	EnglishWord string           `gorm:"size:200;not null" json:"english_word"`
	Translation string           `gorm:"size:200;not null" json:"translation"`
	Definition  string           `gorm:"size:1000" json:"definition"`
	Example     string           `gorm:"size:1000" json:"example"`
	Difficulty  string           `gorm:"size:20" json:"difficulty"`
	Public      bool             `json:"public"`
	Price       *decimal.Decimal `gorm:"type:decimal(10,2)" json:"price,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// TableName Specify table name
func (Flashcard) TableName() string {
	return "flashcards"
}
