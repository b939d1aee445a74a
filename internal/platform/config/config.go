package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "fusionledger/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr                string
	RetentionWindowDays int

	// PostgresURL selects the durable record store; empty means in-memory.
	PostgresURL string

	// RedisURL enables the hot-timeline cache; empty disables it.
	RedisURL string

	// KafkaBrokers enables the Kafka audit sink; empty keeps audit events
	// in memory.
	KafkaBrokers []string
	AuditTopic   string
}

// TimelineCacheTTL bounds how long a cached hot timeline may be served.
var TimelineCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("FUSION_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	windowDays := 0
	if raw := os.Getenv("RETENTION_WINDOW_DAYS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}

	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "fusionledger.audit"
	}

	return Server{
		Addr:                addr,
		RetentionWindowDays: windowDays,
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        brokers,
		AuditTopic:          topic,
	}
}
