package seeders

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zawadi-market/guard_api/model"
	"github.com/zawadi-market/guard_api/shared"
)

// IncidentSeeder inserts a handful of sample incidents so a fresh dev
// environment has data behind the admin endpoints.
type IncidentSeeder struct {
	db *gorm.DB
}

func NewIncidentSeeder(db *gorm.DB) *IncidentSeeder {
	return &IncidentSeeder{db: db}
}

func (s *IncidentSeeder) Seed() error {
	if err := s.db.AutoMigrate(&model.AbuseIncident{}); err != nil {
		return fmt.Errorf("failed to migrate incidents table: %w", err)
	}

	now := time.Now()
	samples := []model.AbuseIncident{
		{IP: "203.0.113.5", Country: "KE", UserAgent: "curl/8.5.0", Reason: shared.ReasonIPSoftLimit, StrikeCount: 3, BurstCount: 140, CreatedAt: now.Add(-6 * time.Hour)},
		{IP: "203.0.113.5", Country: "KE", UserAgent: "curl/8.5.0", Reason: shared.ReasonIPSoftLimit, StrikeCount: 4, BurstCount: 152, CreatedAt: now.Add(-5 * time.Hour)},
		{IP: "198.51.100.23", Country: "US", UserAgent: "python-requests/2.32", Reason: shared.ReasonTrapFieldFilled, StrikeCount: 1, CreatedAt: now.Add(-3 * time.Hour)},
		{IP: "198.51.100.23", Country: "US", UserAgent: "python-requests/2.32", Reason: shared.ReasonInvalidTrapToken, StrikeCount: 2, CreatedAt: now.Add(-2 * time.Hour)},
		{IP: "192.0.2.77", Country: "Unknown", UserAgent: "Go-http-client/1.1", Reason: shared.ReasonBadWebhookSig, StrikeCount: 3, CreatedAt: now.Add(-30 * time.Minute)},
	}

	for i := range samples {
		samples[i].ID = uuid.NewString()
	}

	if err := s.db.Create(&samples).Error; err != nil {
		return fmt.Errorf("failed to insert sample incidents: %w", err)
	}

	log.Printf("Inserted %d sample incidents", len(samples))
	return nil
}
