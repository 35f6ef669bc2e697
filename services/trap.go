package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/shared"
)

// TrapService generates and validates honeypot field names. A trap token is
// embedded as a hidden form field by the storefront; legitimate users never
// see or fill it, so any populated submission or failed validation is a
// strong bot signal for the abuse engine.
//
// Token format: <prefix>_<millis>_<hash>, where prefix comes from a closed
// set of decoy names, and hash is the first 8 hex chars of an HMAC-SHA256
// over the millisecond timestamp.
type TrapService struct {
	appContext.DefaultService

	secret []byte
	ttl    time.Duration

	kv KVStore
}

const TRAP_SVC = "trap_svc"

const trapTokenTTL = 300 * time.Second

// Decoy prefixes are deliberately boring form-field names so that automated
// form fillers cannot pattern-match a single honeypot name. The set is closed;
// add here, nowhere else.
var trapPrefixes = []string{
	"website",
	"company",
	"fax",
	"phone2",
	"address2",
	"nickname",
}

func (svc TrapService) Id() string {
	return TRAP_SVC
}

func (svc *TrapService) Configure(ctx *appContext.Context) error {
	svc.ttl = trapTokenTTL

	secret := os.Getenv("TRAP_SECRET")
	if secret == "" {
		// Ephemeral secret: tokens stop validating across restarts and are
		// not shared between instances. Fine for development, wrong for prod.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate trap secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("TRAP_SECRET not set, using ephemeral secret")
	}
	svc.secret = []byte(secret)

	return svc.DefaultService.Configure(ctx)
}

func (svc *TrapService) Start() error {
	if svc.kv == nil {
		svc.kv = svc.Service(REDIS_SVC).(*RedisService)
	}
	return nil
}

// Generate issues a fresh trap token and registers it in the quota store with
// a short TTL. Expiry without validation silently invalidates the token.
func (svc *TrapService) Generate(ctx context.Context) (string, error) {
	millis := time.Now().UnixMilli()
	token := fmt.Sprintf("%s_%d_%s", pickPrefix(), millis, svc.sign(strconv.FormatInt(millis, 10)))

	if err := svc.kv.Set(ctx, shared.KeyPrefixTrap+token, "issued", svc.ttl); err != nil {
		return "", fmt.Errorf("failed to register trap token: %w", err)
	}

	trapTokensIssuedTotal.Inc()
	return token, nil
}

// Validate reports whether token is a currently-issued trap token. Malformed
// or tampered tokens are a normal false result, never an error, and are
// rejected without touching the store. A store failure counts as valid: a
// missed bot signal is cheaper than punishing a legitimate client.
func (svc *TrapService) Validate(ctx context.Context, token string) bool {
	parts := strings.Split(token, "_")
	if len(parts) != 3 {
		trapValidationFailuresTotal.Inc()
		return false
	}

	expected := svc.sign(parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		trapValidationFailuresTotal.Inc()
		return false
	}

	exists, err := svc.kv.Exists(ctx, shared.KeyPrefixTrap+token)
	if err != nil {
		log.WithError(err).Warn("Trap token lookup failed, treating as valid")
		return true
	}
	if !exists {
		trapValidationFailuresTotal.Inc()
	}

	return exists
}

func (svc *TrapService) sign(millis string) string {
	mac := hmac.New(sha256.New, svc.secret)
	mac.Write([]byte(millis))
	return hex.EncodeToString(mac.Sum(nil))[:8]
}

// LooksLikeTrapField reports whether a submitted field name has the shape of
// a trap token. Form handlers use it to find the honeypot field among
// arbitrary submitted keys before running full validation.
func (svc *TrapService) LooksLikeTrapField(name string) bool {
	return LooksLikeTrapField(name)
}

func LooksLikeTrapField(name string) bool {
	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return false
	}
	for _, p := range trapPrefixes {
		if parts[0] == p {
			return true
		}
	}
	return false
}

func pickPrefix() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(trapPrefixes))))
	if err != nil {
		return trapPrefixes[0]
	}
	return trapPrefixes[n.Int64()]
}
