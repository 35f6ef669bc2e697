package services

import (
	"fmt"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zawadi-market/guard_api/dto"
	"github.com/zawadi-market/guard_api/model"
)

// PostgresService is the durable sink for abuse incidents. It sits entirely
// off the hot path: the abuse engine hands incidents to a queue, and only the
// queue worker touches this service.
type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		// Fallback to individual environment variables
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "guard_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			host, user, password, dbname, port, sslmode)
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	// Retry connection with exponential backoff
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})

		if err == nil {
			sqlDB, dbErr := ds.db.DB()
			if dbErr == nil {
				if pingErr := sqlDB.Ping(); pingErr == nil {
					break
				} else {
					err = pingErr
				}
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	err = ds.db.AutoMigrate(&model.AbuseIncident{})
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		for range ticker.C {
			if err := ds.CleanupOldIncidents(); err != nil {
				log.Printf("Failed to cleanup old incidents: %v", err)
			}
		}
	}()

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *PostgresService) Shutdown() {
	if ds.db != nil {
		if sqlDB, err := ds.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// SaveIncident inserts a single incident row. Called from the incident queue
// worker only.
func (ds *PostgresService) SaveIncident(incident *model.AbuseIncident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now()
	}
	return ds.db.Create(incident).Error
}

func (ds *PostgresService) ListIncidents(page, limit int) (*dto.IncidentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	if err := ds.db.Model(&model.AbuseIncident{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var incidents []model.AbuseIncident
	err := ds.db.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&incidents).Error
	if err != nil {
		return nil, err
	}

	resp := &dto.IncidentListResponse{
		Incidents: make([]dto.IncidentInfo, 0, len(incidents)),
		Total:     total,
		Page:      page,
		Limit:     limit,
	}
	for _, in := range incidents {
		resp.Incidents = append(resp.Incidents, dto.IncidentInfo{
			ID:          in.ID,
			IP:          in.IP,
			Country:     in.Country,
			UserAgent:   in.UserAgent,
			Reason:      in.Reason,
			StrikeCount: in.StrikeCount,
			BurstCount:  in.BurstCount,
			CreatedAt:   in.CreatedAt,
		})
	}

	return resp, nil
}

func (ds *PostgresService) IncidentStats() (*dto.AbuseStatsResponse, error) {
	var total int64
	if err := ds.db.Model(&model.AbuseIncident{}).Count(&total).Error; err != nil {
		return nil, err
	}

	rows := []struct {
		Reason string
		Count  int64
	}{}
	err := ds.db.Model(&model.AbuseIncident{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byType := make(map[string]int64, len(rows))
	for _, r := range rows {
		byType[r.Reason] = r.Count
	}

	return &dto.AbuseStatsResponse{
		TotalIncidents:  total,
		IncidentsByType: byType,
		Timestamp:       time.Now(),
	}, nil
}

// CleanupOldIncidents drops incident rows older than 90 days.
func (ds *PostgresService) CleanupOldIncidents() error {
	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	return ds.db.Where("created_at < ?", cutoff).Delete(&model.AbuseIncident{}).Error
}
