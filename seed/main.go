package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zawadi-market/guard_api/seed/seeders"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var (
		seedType = flag.String("type", "denylist", "Type of seeding: denylist, incidents, all")
		file     = flag.String("file", "denylist.txt", "Denylist file, one IP per line")
		banTTL   = flag.Duration("ttl", 24*time.Hour, "Ban duration for seeded denylist entries")
		clear    = flag.Bool("clear", false, "Remove the denylist entries instead of adding them")
		help     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getenvInt("REDIS_DB", 0),
	})

	mainSeeder := seeders.NewMainSeeder(rdb)

	switch *seedType {
	case "denylist":
		if *clear {
			log.Println("Clearing denylist entries...")
			if err := mainSeeder.ClearDenylist(*file); err != nil {
				log.Fatalf("Failed to clear denylist: %v", err)
			}
		} else {
			log.Println("Seeding denylist bans...")
			if err := mainSeeder.SeedDenylist(*file, *banTTL); err != nil {
				log.Fatalf("Failed to seed denylist: %v", err)
			}
		}
	case "incidents":
		log.Println("Seeding sample incidents...")
		if err := mainSeeder.SeedIncidents(connectDB()); err != nil {
			log.Fatalf("Failed to seed incidents: %v", err)
		}
	case "all":
		log.Println("Running complete seeding...")
		if err := mainSeeder.SeedDenylist(*file, *banTTL); err != nil {
			log.Fatalf("Failed to seed denylist: %v", err)
		}
		if err := mainSeeder.SeedIncidents(connectDB()); err != nil {
			log.Fatalf("Failed to seed incidents: %v", err)
		}
	default:
		log.Fatalf("Unknown seed type: %s. Use 'denylist', 'incidents' or 'all'", *seedType)
	}

	log.Println("Seeding operation completed successfully!")
}

func connectDB() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func showHelp() {
	log.Print(`
Abuse Engine Seeding Tool

Usage: go run seed/main.go [flags]

Flags:
  -type string
        Type of seeding to perform (default "denylist")
        Options: denylist, incidents, all
  -file string
        Denylist file with one IP per line, '#' starts a comment (default "denylist.txt")
  -ttl duration
        Ban duration for seeded denylist entries (default 24h)
  -clear
        Remove the listed denylist entries instead of adding them
  -help
        Show this help message

Examples:
  # Pre-ban a list of known bad IPs for 24h
  go run seed/main.go -file=ops/denylist.txt

  # Pre-ban for a week
  go run seed/main.go -file=ops/denylist.txt -ttl=168h

  # Lift the same bans again
  go run seed/main.go -file=ops/denylist.txt -clear

  # Create sample incidents for a dev dashboard
  go run seed/main.go -type=incidents

Environment Variables:
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB - quota store connection
  DATABASE_URL                         - incident store connection (incidents only)
`)
}
