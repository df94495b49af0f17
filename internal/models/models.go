// Package models define as tabelas persistidas via gorm.
package models

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

type Media struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint64    `gorm:"index;not null" json:"owner_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Kind      string    `gorm:"type:varchar(32);not null" json:"kind"`
	URL       string    `gorm:"type:text" json:"url"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// View é um registro de visualização. ViewerKey é a identidade usada para
// contar visitantes únicos ("user:<id>" ou "ip:<addr>").
type View struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MediaID   uint64    `gorm:"index;not null" json:"media_id"`
	ViewerKey string    `gorm:"type:varchar(255);not null" json:"-"`
	UserID    *uint64   `gorm:"index" json:"user_id,omitempty"`
	UserAgent string    `gorm:"type:text" json:"-"`
	ViewedAt  time.Time `gorm:"index;not null" json:"viewed_at"`
}

func (User) TableName() string  { return "users" }
func (Media) TableName() string { return "media" }
func (View) TableName() string  { return "views" }

// MediaKinds são os tipos aceitos no upload.
var MediaKinds = []string{"image", "video", "audio"}
