package gormdir

import "time"

// Customer mirrors the salon backend's customers table.
type Customer struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	ShopID    string `gorm:"index;not null"`
	Name      string
	Grade     string `gorm:"index"`
	Active    bool   `gorm:"not null"`
	CreatedAt time.Time
}

type CustomerTag struct {
	CustomerID string `gorm:"primaryKey;type:varchar(64)"`
	Tag        string `gorm:"primaryKey;type:varchar(100)"`
}

type Visit struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ShopID     string    `gorm:"index:idx_visits_shop_customer;not null"`
	CustomerID string    `gorm:"index:idx_visits_shop_customer;not null"`
	VisitedAt  time.Time `gorm:"index;not null"`
}

// MessageLog is one sent message. Only MARKETING messages count as recent contact.
type MessageLog struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ShopID     string    `gorm:"index;not null"`
	CustomerID string    `gorm:"index;not null"`
	Category   string    `gorm:"not null;default:MARKETING"`
	SentAt     time.Time `gorm:"index;not null"`
}

const categoryMarketing = "MARKETING"
