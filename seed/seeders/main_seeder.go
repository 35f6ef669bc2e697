package seeders

import (
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// MainSeeder orchestrates the individual seeders behind one entrypoint.
type MainSeeder struct {
	rdb *redis.Client
}

func NewMainSeeder(rdb *redis.Client) *MainSeeder {
	return &MainSeeder{rdb: rdb}
}

func (s *MainSeeder) SeedDenylist(file string, ttl time.Duration) error {
	return NewDenylistSeeder(s.rdb).Seed(file, ttl)
}

func (s *MainSeeder) ClearDenylist(file string) error {
	return NewDenylistSeeder(s.rdb).Clear(file)
}

func (s *MainSeeder) SeedIncidents(db *gorm.DB) error {
	return NewIncidentSeeder(db).Seed()
}
