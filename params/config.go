package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

type Storage struct {
	DataDir string
	// RentLamportsPerByte prices record allocation: (128 + size) * rate is debited
	// from the payer when an order or marketplace record is created
	RentLamportsPerByte uint64
	GenesisFile         string
}

type Node struct {
	APIAddr     string
	LogFile     string
	Verbose     bool
	CORSOrigins []string

	// Faucet credits lamports on request, capped per call. Devnet only
	EnableFaucet      bool
	FaucetMaxLamports uint64
}

type Sinks struct {
	KafkaBrokers []string // empty disables the kafka sink
	KafkaTopic   string
	PostgresDSN  string // empty disables trade history
}

type Config struct {
	Domain  crypto.Domain
	Storage Storage
	Node    Node
	Sinks   Sinks
}

func Default() Config {
	return Config{
		Domain: crypto.DefaultDomain(),
		Storage: Storage{
			DataDir:             "data/ledger",
			RentLamportsPerByte: 6960, // ~0.00089 SOL for a 0-byte record, matching the rent-exempt minimum
		},
		Node: Node{
			APIAddr:           ":8080",
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:3001"},
			FaucetMaxLamports: 2_000_000_000, // 2 SOL
		},
		Sinks: Sinks{
			KafkaTopic: "marketplace-events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.GenesisFile = getEnv("GENESIS_FILE", cfg.Storage.GenesisFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Sinks.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Sinks.KafkaTopic)
	cfg.Sinks.PostgresDSN = getEnv("POSTGRES_DSN", cfg.Sinks.PostgresDSN)
	cfg.Domain.Name = getEnv("DOMAIN_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnv("DOMAIN_VERSION", cfg.Domain.Version)

	if id := os.Getenv("PROGRAM_ID"); id != "" {
		pk, err := crypto.ParsePubkey(id)
		if err != nil {
			return cfg, err
		}
		cfg.Domain.ProgramID = pk
	}

	var err error
	if cfg.Domain.ChainID, err = getUint("CHAIN_ID", cfg.Domain.ChainID); err != nil {
		return cfg, err
	}
	if cfg.Storage.RentLamportsPerByte, err = getUint("RENT_LAMPORTS_PER_BYTE", cfg.Storage.RentLamportsPerByte); err != nil {
		return cfg, err
	}
	if cfg.Node.FaucetMaxLamports, err = getUint("FAUCET_MAX_LAMPORTS", cfg.Node.FaucetMaxLamports); err != nil {
		return cfg, err
	}

	if v := os.Getenv("ENABLE_FAUCET"); v != "" {
		cfg.Node.EnableFaucet = v == "true"
	}
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Node.Verbose = v == "true"
	}

	// Comma-separated lists, e.g. "broker1:9092,broker2:9092"
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Sinks.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Node.CORSOrigins = splitList(v)
	}

	return cfg, nil
}

// FaucetLamports is the per-call faucet cap, or 0 when the faucet is off
func (c Config) FaucetLamports() uint64 {
	if !c.Node.EnableFaucet {
		return 0
	}
	return c.Node.FaucetMaxLamports
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue, &EnvError{Key: key, Value: value, Err: err}
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnvError reports an environment variable that could not be parsed
type EnvError struct {
	Key   string
	Value string
	Err   error
}

func (e *EnvError) Error() string {
	return "invalid " + e.Key + "=" + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *EnvError) Unwrap() error { return e.Err }
