package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/shared"
)

// CountryResolver is the slice of geolocation the abuse engine needs.
type CountryResolver interface {
	CountryCode(ctx context.Context, ip string) string
}

// GeolocationService resolves client IPs to ISO country codes for the
// per-country burst counters and incident records. Lookups go to ip-api.com
// and are cached in the quota store for 24 hours; every failure degrades to
// "Unknown" so the request path never depends on the lookup succeeding.
type GeolocationService struct {
	appContext.DefaultService

	httpClient  *http.Client
	apiURL      string
	cacheExpiry time.Duration

	kv KVStore
}

const GEOLOCATION_SVC = "geolocation_svc"

func (svc GeolocationService) Id() string {
	return GEOLOCATION_SVC
}

func (svc *GeolocationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	svc.apiURL = os.Getenv("GEO_API_URL")
	if svc.apiURL == "" {
		svc.apiURL = "http://ip-api.com/json"
	}
	svc.cacheExpiry = 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeolocationService) Start() error {
	if svc.kv == nil {
		svc.kv = svc.Service(REDIS_SVC).(*RedisService)
	}
	return nil
}

func (svc *GeolocationService) CountryCode(ctx context.Context, ip string) string {
	if ip == "" || ip == "unknown" || ip == "127.0.0.1" || ip == "::1" {
		return "Local"
	}

	cacheKey := shared.KeyPrefixGeoCache + ip

	if svc.kv != nil {
		cached, err := svc.kv.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			return cached
		}
	}

	code := svc.fetchCountryCode(ip)

	if svc.kv != nil && code != "Unknown" {
		if err := svc.kv.Set(ctx, cacheKey, code, svc.cacheExpiry); err != nil {
			log.WithError(err).WithField("ip", ip).Warn("Failed to cache geolocation result")
		}
	}

	return code
}

func (svc *GeolocationService) fetchCountryCode(ip string) string {
	url := fmt.Sprintf("%s/%s?fields=status,countryCode", svc.apiURL, ip)

	resp, err := svc.httpClient.Get(url)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Error("Failed to get geolocation")
		return "Unknown"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).WithField("ip", ip).Error("Geolocation API returned non-200 status")
		return "Unknown"
	}

	var result struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.WithError(err).WithField("ip", ip).Error("Failed to decode geolocation response")
		return "Unknown"
	}

	if result.Status != "success" || result.CountryCode == "" {
		return "Unknown"
	}

	return result.CountryCode
}
