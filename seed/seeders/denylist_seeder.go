package seeders

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zawadi-market/guard_api/model"
	"github.com/zawadi-market/guard_api/shared"
)

// DenylistSeeder loads a file of known-bad IPs into the block store so the
// abuse engine treats them as hard-banned from the first request. Useful
// after an incident, before the strike machinery would catch them again.
type DenylistSeeder struct {
	rdb *redis.Client
}

func NewDenylistSeeder(rdb *redis.Client) *DenylistSeeder {
	return &DenylistSeeder{rdb: rdb}
}

func (s *DenylistSeeder) Seed(file string, ttl time.Duration) error {
	ips, err := readDenylist(file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, ip := range ips {
		key := shared.KeyPrefixBlock + ip
		if err := s.rdb.Set(ctx, key, model.BannedMarker, ttl).Err(); err != nil {
			return fmt.Errorf("failed to ban %s: %w", ip, err)
		}
	}

	log.Printf("Banned %d IPs for %s", len(ips), ttl)
	return nil
}

func (s *DenylistSeeder) Clear(file string) error {
	ips, err := readDenylist(file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	keys := make([]string, 0, len(ips)*2)
	for _, ip := range ips {
		keys = append(keys, shared.KeyPrefixBlock+ip, shared.KeyPrefixSoftStrike+ip)
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear denylist entries: %w", err)
		}
	}

	log.Printf("Cleared %d IPs", len(ips))
	return nil
}

func readDenylist(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open denylist: %w", err)
	}
	defer f.Close()

	var ips []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if net.ParseIP(line) == nil {
			log.Printf("Skipping invalid IP %q", line)
			continue
		}
		ips = append(ips, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read denylist: %w", err)
	}

	return ips, nil
}
