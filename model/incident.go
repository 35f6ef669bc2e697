package model

import "time"

// AbuseIncident is the append-only log record written for every recorded
// violation. Inserts are best effort and never block the request path.
type AbuseIncident struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text;not null"`
	IP          string    `json:"ip" gorm:"not null;index;size:64"`
	Country     string    `json:"country" gorm:"size:8;index"`
	UserAgent   string    `json:"user_agent" gorm:"size:512"`
	Reason      string    `json:"reason" gorm:"not null;size:50;index"`
	StrikeCount int       `json:"strike_count" gorm:"default:0;not null"`
	BurstCount  int       `json:"burst_count" gorm:"default:0;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index"`
}
