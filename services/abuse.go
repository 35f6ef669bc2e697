package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/dto"
	"github.com/zawadi-market/guard_api/model"
	"github.com/zawadi-market/guard_api/shared"
)

const (
	// Soft violations: burst-threshold breaches. Strikes decay after 15
	// minutes of quiet; 25 strikes inside the decay window earn a 24h ban.
	softStrikeTTL     = 15 * time.Minute
	softBanThreshold  = 25
	softBanTTL        = 24 * time.Hour
	softDelayBase     = 1000 * time.Millisecond
	softDelayStep     = 300 * time.Millisecond

	// Validity violations: failed signature or honeypot checks. Stronger
	// evidence, so a much lower threshold and a week-long ban.
	validityStrikeTTL    = time.Hour
	validityBanThreshold = 3
	validityBanTTL       = 7 * 24 * time.Hour

	// Per-IP burst observation
	burstBucketSize   = 30 * time.Second
	defaultBurstLimit = 100

	incidentQueueSize = 256
)

// IncidentSink persists abuse incidents. Implemented by PostgresService.
type IncidentSink interface {
	SaveIncident(incident *model.AbuseIncident) error
}

// IncidentMeta carries the request context attached to a logged incident.
type IncidentMeta struct {
	Country    string
	UserAgent  string
	Reason     string
	BurstCount int
}

// AbuseService is the strike/penalty/ban state machine. Two independent
// tracks share the per-IP block slot: soft strikes from burst thresholds,
// and validity strikes from failed signature/honeypot checks.
//
// Every quota-store operation here is a network call that can fail. The
// engine fails open throughout: on store errors it reports "not banned",
// records nothing and lets the request through. False-positive blocking of
// legitimate buyers costs more than an occasional missed abuse signal; this
// is a deliberate policy choice, not an oversight.
type AbuseService struct {
	appContext.DefaultService

	kv   KVStore
	geo  CountryResolver
	sink IncidentSink

	burstLimit int

	now   func() time.Time
	sleep func(time.Duration)

	incidents chan *model.AbuseIncident
	done      chan struct{}
}

const ABUSE_SVC = "abuse_svc"

func (svc AbuseService) Id() string {
	return ABUSE_SVC
}

func (svc *AbuseService) Configure(ctx *appContext.Context) error {
	svc.burstLimit = defaultBurstLimit
	if limitStr := os.Getenv("IP_BURST_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			svc.burstLimit = limit
		}
	}

	svc.now = time.Now
	svc.sleep = time.Sleep
	svc.incidents = make(chan *model.AbuseIncident, incidentQueueSize)
	svc.done = make(chan struct{})

	return svc.DefaultService.Configure(ctx)
}

func (svc *AbuseService) Start() error {
	if svc.kv == nil {
		svc.kv = svc.Service(REDIS_SVC).(*RedisService)
	}
	if svc.geo == nil {
		svc.geo = svc.Service(GEOLOCATION_SVC).(*GeolocationService)
	}
	if svc.sink == nil {
		svc.sink = svc.Service(POSTGRES_SVC).(*PostgresService)
	}

	go svc.incidentWorker()

	return nil
}

func (svc *AbuseService) Shutdown() {
	close(svc.done)
}

// ==================== BAN STATE ====================

// IsBanned reports whether identity currently carries the hard-ban marker.
// A numeric strike count alone is not a ban. Store failure reads as clean.
func (svc *AbuseService) IsBanned(ctx context.Context, identity string) bool {
	raw, err := svc.kv.Get(ctx, shared.KeyPrefixBlock+identity)
	if err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Ban lookup failed, failing open")
		return false
	}
	return model.ParseStrikeRecord(raw).Banned()
}

// Status returns the decoded strike record for an identity, for the admin API.
func (svc *AbuseService) Status(ctx context.Context, identity string) (*dto.BanStatusResponse, error) {
	raw, err := svc.kv.Get(ctx, shared.KeyPrefixBlock+identity)
	if err != nil {
		return nil, err
	}

	record := model.ParseStrikeRecord(raw)
	resp := &dto.BanStatusResponse{
		IP:      identity,
		Banned:  record.Banned(),
		Strikes: record.Strikes,
	}

	if record.State != model.StrikeClean {
		if ttl, err := svc.kv.TTL(ctx, shared.KeyPrefixBlock+identity); err == nil && ttl > 0 {
			resp.TTLSeconds = int64(ttl / time.Second)
		}
	}

	return resp, nil
}

// Unban clears the block slot and soft-strike counter for an identity.
func (svc *AbuseService) Unban(ctx context.Context, identity string) error {
	return svc.kv.Del(ctx,
		shared.KeyPrefixBlock+identity,
		shared.KeyPrefixSoftStrike+identity,
	)
}

// ==================== VIOLATION RECORDING ====================

// RecordSoftViolation adds a decaying strike against identity and returns
// the progressive delay the caller should apply before continuing. The
// request is degraded, not rejected, until the strike count crosses the
// soft-ban threshold.
func (svc *AbuseService) RecordSoftViolation(ctx context.Context, identity string, meta IncidentMeta) time.Duration {
	if meta.Reason == "" {
		meta.Reason = shared.ReasonIPSoftLimit
	}

	strikeKey := shared.KeyPrefixSoftStrike + identity
	strikes, err := svc.kv.Incr(ctx, strikeKey)
	if err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Soft strike increment failed, failing open")
		return 0
	}

	// Decay window restarts on every strike
	if err := svc.kv.Expire(ctx, strikeKey, softStrikeTTL); err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Failed to refresh soft strike TTL")
	}

	violationsTotal.WithLabelValues(meta.Reason).Inc()

	if strikes >= softBanThreshold {
		blockKey := shared.KeyPrefixBlock + identity
		raw, getErr := svc.kv.Get(ctx, blockKey)
		switch {
		case getErr != nil:
			log.WithError(getErr).WithField("ip", identity).Warn("Ban slot lookup failed, skipping escalation")
		case model.ParseStrikeRecord(raw).Banned():
			// Already hard-banned; never touch the ban TTL
		default:
			if err := svc.kv.Set(ctx, blockKey, model.BannedMarker, softBanTTL); err != nil {
				log.WithError(err).WithField("ip", identity).Warn("Failed to set soft ban")
			} else {
				bansTotal.WithLabelValues("soft").Inc()
				log.WithFields(log.Fields{"ip": identity, "strikes": strikes}).Warn("IP soft-banned")
			}
		}
	}

	svc.logIncident(&model.AbuseIncident{
		IP:          identity,
		Country:     meta.Country,
		UserAgent:   meta.UserAgent,
		Reason:      meta.Reason,
		StrikeCount: int(strikes),
		BurstCount:  meta.BurstCount,
	})

	return softDelayBase + softDelayStep*time.Duration(strikes-1)
}

// RecordValidityViolation converts a failed structural/cryptographic check
// into a strike. Returns whether a violation was recorded, so callers can
// short-circuit further processing (e.g. drop a forged webhook behind a
// generic 200).
func (svc *AbuseService) RecordValidityViolation(ctx context.Context, c *fiber.Ctx, isInvalid bool, reason string) bool {
	if !isInvalid {
		return false
	}

	identity := getClientIP(c)
	meta := IncidentMeta{
		UserAgent: c.Get("User-Agent"),
		Reason:    reason,
	}
	if svc.geo != nil {
		meta.Country = svc.geo.CountryCode(ctx, identity)
	}

	violationsTotal.WithLabelValues(reason).Inc()

	blockKey := shared.KeyPrefixBlock + identity

	raw, err := svc.kv.Get(ctx, blockKey)
	if err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Strike lookup failed, failing open")
		svc.logIncident(&model.AbuseIncident{IP: identity, Country: meta.Country, UserAgent: meta.UserAgent, Reason: reason})
		return true
	}

	record := model.ParseStrikeRecord(raw)
	if record.Banned() {
		// Already hard-banned; never touch the ban TTL
		svc.logIncident(&model.AbuseIncident{IP: identity, Country: meta.Country, UserAgent: meta.UserAgent, Reason: reason})
		return true
	}

	strikes, err := svc.kv.Incr(ctx, blockKey)
	if err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Validity strike increment failed, failing open")
		svc.logIncident(&model.AbuseIncident{IP: identity, Country: meta.Country, UserAgent: meta.UserAgent, Reason: reason})
		return true
	}

	if strikes == 1 {
		if err := svc.kv.Expire(ctx, blockKey, validityStrikeTTL); err != nil {
			log.WithError(err).WithField("ip", identity).Warn("Failed to set validity strike TTL")
		}
	}

	if strikes >= validityBanThreshold {
		if err := svc.kv.Set(ctx, blockKey, model.BannedMarker, validityBanTTL); err != nil {
			log.WithError(err).WithField("ip", identity).Warn("Failed to set validity ban")
		} else {
			bansTotal.WithLabelValues("validity").Inc()
			log.WithFields(log.Fields{"ip": identity, "reason": reason, "strikes": strikes}).Warn("IP banned for validity violations")
		}
	}

	svc.logIncident(&model.AbuseIncident{
		IP:          identity,
		Country:     meta.Country,
		UserAgent:   meta.UserAgent,
		Reason:      reason,
		StrikeCount: int(strikes),
	})

	return true
}

// ==================== COUNTRY-AWARE OBSERVER ====================

// CheckIPLimits increments the per-IP and per-country burst counters for a
// request and escalates to a soft violation when the per-IP bucket exceeds
// the burst limit. Country counters are monitoring only and never trigger
// bans by themselves. Returns whether the identity is currently hard-banned,
// checked after any new escalation.
func (svc *AbuseService) CheckIPLimits(ctx context.Context, c *fiber.Ctx) bool {
	identity := getClientIP(c)
	bucket := svc.now().Unix() / int64(burstBucketSize/time.Second)

	ipKey := fmt.Sprintf("%s%s:%d", shared.KeyPrefixIPQuota, identity, bucket)
	burst, err := svc.kv.Incr(ctx, ipKey)
	if err != nil {
		log.WithError(err).WithField("ip", identity).Warn("Burst counter increment failed, failing open")
		return false
	}
	if burst == 1 {
		if err := svc.kv.Expire(ctx, ipKey, 2*burstBucketSize); err != nil {
			log.WithError(err).WithField("ip", identity).Warn("Failed to set burst counter expiry")
		}
	}

	country := "Unknown"
	if svc.geo != nil {
		country = svc.geo.CountryCode(ctx, identity)
	}

	countryKey := fmt.Sprintf("%s%s:%d", shared.KeyPrefixCountryLog, country, bucket)
	if n, err := svc.kv.Incr(ctx, countryKey); err == nil && n == 1 {
		if err := svc.kv.Expire(ctx, countryKey, 2*burstBucketSize); err != nil {
			log.WithError(err).WithField("country", country).Warn("Failed to set country counter expiry")
		}
	}

	if burst > int64(svc.burstLimit) {
		delay := svc.RecordSoftViolation(ctx, identity, IncidentMeta{
			Country:    country,
			UserAgent:  c.Get("User-Agent"),
			Reason:     shared.ReasonIPSoftLimit,
			BurstCount: int(burst),
		})
		// Soft sinkhole: degrade scraper throughput without rejecting
		svc.sleep(delay)
	}

	return svc.IsBanned(ctx, identity)
}

// Guard is the outermost middleware: observes every request and rejects
// hard-banned identities.
func (svc *AbuseService) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.CheckIPLimits(c.UserContext(), c) {
			return shared.ResponseJSON(c, http.StatusForbidden, "Forbidden", nil)
		}
		return c.Next()
	}
}

// ==================== INCIDENT LOGGING ====================

// logIncident hands an incident to the background writer. Never blocks: if
// the queue is full the incident is dropped and counted.
func (svc *AbuseService) logIncident(incident *model.AbuseIncident) {
	incident.CreatedAt = svc.now()

	select {
	case svc.incidents <- incident:
	default:
		incidentsDroppedTotal.Inc()
	}
}

func (svc *AbuseService) incidentWorker() {
	for {
		select {
		case incident := <-svc.incidents:
			if svc.sink == nil {
				continue
			}
			if err := svc.sink.SaveIncident(incident); err != nil {
				log.WithError(err).Warn("Failed to persist abuse incident")
			}
		case <-svc.done:
			return
		}
	}
}
