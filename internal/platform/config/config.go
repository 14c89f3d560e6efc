package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Ledger configures the consensus log gateway.
type Ledger struct {
	// Network is a human-readable name for the log deployment ("testnet",
	// "mainnet", "local").
	Network string
	// NodeURL is the submission endpoint receipts are published through.
	NodeURL string
	// MirrorURL is the read-replica base URL used for entry queries and for
	// building proof lookup URLs.
	MirrorURL string
	// TopicPurpose is the logical purpose string that EnsureTopic resolves to
	// a concrete topic ID. The same purpose always resolves to the same topic.
	TopicPurpose string
	// OperatorID and OperatorKey authenticate publish calls.
	OperatorID  string
	OperatorKey string
	// RequestTimeout bounds individual gateway calls.
	RequestTimeout time.Duration
}

// Anchoring configures the anchoring domain services.
type Anchoring struct {
	// PartySalt keys the one-way hashing of owner/merchant references before
	// they are published. Must stay stable or previously anchored payloads
	// will no longer verify.
	PartySalt string
	// ProofSigningKey signs proof bundle attestations. Empty disables signing.
	ProofSigningKey string
	// VerifyBaseURL is the externally reachable base for verification links
	// embedded in proof bundles.
	VerifyBaseURL string
	// BulkRatePerSecond paces bulk anchoring submissions.
	BulkRatePerSecond int
	// QueryLimit caps how many recent ledger entries a verify call fetches.
	QueryLimit int
	// VerifyCacheTTL bounds how long a verification verdict may be served
	// from cache.
	VerifyCacheTTL time.Duration
}

// RedisConfig holds connection settings for the optional redis cache.
type RedisConfig struct {
	URL string
}

// KafkaConfig holds connection settings for the optional audit event stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is the full process configuration.
type Config struct {
	Server    Server
	Ledger    Ledger
	Anchoring Anchoring
	Redis     RedisConfig
	Kafka     KafkaConfig
	// PostgresDSN enables the postgres stores; empty keeps in-memory stores.
	PostgresDSN string
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Defaults target local development.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getenv("ANCHOR_ADDR", ":8080"),
		},
		Ledger: Ledger{
			Network:        getenv("LEDGER_NETWORK", "testnet"),
			NodeURL:        getenv("LEDGER_NODE_URL", "http://localhost:9090"),
			MirrorURL:      getenv("LEDGER_MIRROR_URL", "http://localhost:9091"),
			TopicPurpose:   getenv("LEDGER_TOPIC_PURPOSE", "receipt-integrity-anchors"),
			OperatorID:     os.Getenv("LEDGER_OPERATOR_ID"),
			OperatorKey:    os.Getenv("LEDGER_OPERATOR_KEY"),
			RequestTimeout: getduration("LEDGER_REQUEST_TIMEOUT", 15*time.Second),
		},
		Anchoring: Anchoring{
			PartySalt:         getenv("ANCHOR_PARTY_SALT", "dev-salt-change-in-production"),
			ProofSigningKey:   os.Getenv("ANCHOR_PROOF_SIGNING_KEY"),
			VerifyBaseURL:     getenv("ANCHOR_VERIFY_BASE_URL", "http://localhost:8080"),
			BulkRatePerSecond: getint("ANCHOR_BULK_RATE_PER_SECOND", 5),
			QueryLimit:        getint("ANCHOR_QUERY_LIMIT", 100),
			VerifyCacheTTL:    getduration("ANCHOR_VERIFY_CACHE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenv("KAFKA_AUDIT_TOPIC", "receipt-anchor-events"),
		},
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if part := v[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
