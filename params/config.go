package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Relay struct {
	// StoragePath is the pebble database directory for the order store.
	StoragePath string
	// CallTimeout bounds how long the relayer waits for a counterparty to
	// answer a relayer-issued request (e.g. executeOrder toward the maker).
	CallTimeout time.Duration
	// SubscriberBuffer is the per-subscription event buffer; a full buffer
	// drops events rather than block the engine.
	SubscriberBuffer int
}

type API struct {
	Addr string
}

type Firehose struct {
	// Brokers is the kafka broker list; empty disables the firehose.
	Brokers []string
	Topic   string
}

type Payments struct {
	// DaemonURL is the payment daemon's REST gateway, used by the workflow
	// tier. Empty disables the workflow tier.
	DaemonURL string
	// LedgerPath is the sqlite file backing the workflow document ledger.
	LedgerPath string
}

type Config struct {
	Relay    Relay
	API      API
	Firehose Firehose
	Payments Payments
}

func Default() Config {
	return Config{
		Relay: Relay{
			StoragePath:      "data/orders",
			CallTimeout:      30 * time.Second,
			SubscriberBuffer: 64,
		},
		API: API{
			Addr: ":50078",
		},
		Firehose: Firehose{
			Topic: "order-events",
		},
		Payments: Payments{
			LedgerPath: "data/ledger.db",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("RELAY_STORAGE_PATH"); v != "" {
		cfg.Relay.StoragePath = v
	}
	if v := os.Getenv("RELAY_CALL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Relay.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("RELAY_SUBSCRIBER_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relay.SubscriberBuffer = n
		}
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Firehose.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Firehose.Topic = v
	}
	if v := os.Getenv("PAYMENTS_DAEMON_URL"); v != "" {
		cfg.Payments.DaemonURL = v
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		cfg.Payments.LedgerPath = v
	}

	return cfg
}
