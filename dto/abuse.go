package dto

import "time"

type RateLimitInfo struct {
	Allowed   bool       `json:"allowed"`
	Remaining int        `json:"remaining"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
}

type TrapTokenResponse struct {
	Field string `json:"field"`
}

type BookingRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Date    string `json:"date" validate:"required"`
	Guests  int    `json:"guests" validate:"required,gt=0"`
	Message string `json:"message" validate:"max=2000"`
}

func (r BookingRequest) Validate() error {
	return GetValidator().Struct(r)
}

type BookingResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type IncidentInfo struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Country     string    `json:"country"`
	UserAgent   string    `json:"user_agent"`
	Reason      string    `json:"reason"`
	StrikeCount int       `json:"strike_count"`
	BurstCount  int       `json:"burst_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type IncidentListResponse struct {
	Incidents []IncidentInfo `json:"incidents"`
	Total     int64          `json:"total"`
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
}

type BanStatusResponse struct {
	IP      string `json:"ip"`
	Banned  bool   `json:"banned"`
	Strikes int    `json:"strikes"`
	// Remaining lifetime of the ban or strike window, zero when clean
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

type RateLimitConfigInfo struct {
	Kind           string `json:"kind"`
	Algorithm      string `json:"algorithm"`
	MaxRequests    int    `json:"max_requests"`
	WindowSeconds  int    `json:"window_seconds"`
	Description    string `json:"description"`
	IsActive       bool   `json:"is_active"`
}

type AbuseStatsResponse struct {
	TotalIncidents  int64            `json:"total_incidents"`
	IncidentsByType map[string]int64 `json:"incidents_by_type"`
	Timestamp       time.Time        `json:"timestamp"`
}
