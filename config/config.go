package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings loaded from environment variables: where the
// build inputs live, where artifacts go, and how the build runs.
type Config struct {
	SectorsPath          string
	SectorOutputPath     string
	EconomicFlowsPath    string
	EnvironmentFlowsPath string
	ProcessSectorsPath   string
	CharacterizationPath string
	CrosswalkPath        string
	ModelConfigPath      string

	ArtifactPath        string
	MultipliersCSVPath  string
	UnclassifiedCSVPath string
	SQLitePath          string
	MetricsTextfile     string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	Workers      int
	MaxRetries   int
	BuildTimeout time.Duration
	LogLevel     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		SectorsPath:          getEnv("SECTORS_PATH", "./data/sectors.csv"),
		SectorOutputPath:     getEnv("SECTOR_OUTPUT_PATH", "./data/sector_output.csv"),
		EconomicFlowsPath:    getEnv("ECONOMIC_FLOWS_PATH", "./data/economic_flows.csv"),
		EnvironmentFlowsPath: getEnv("ENVIRONMENT_FLOWS_PATH", "./data/environmental_flows.csv"),
		ProcessSectorsPath:   getEnv("PROCESS_SECTORS_PATH", "./data/process_sectors.csv"),
		CharacterizationPath: getEnv("CHARACTERIZATION_PATH", ""),
		CrosswalkPath:        getEnv("CROSSWALK_PATH", "./data/crosswalk.csv"),
		ModelConfigPath:      getEnv("MODEL_CONFIG_PATH", ""),

		ArtifactPath:        getEnv("ARTIFACT_PATH", "./output/multipliers.json"),
		MultipliersCSVPath:  getEnv("MULTIPLIERS_CSV_PATH", "./output/multipliers.csv"),
		UnclassifiedCSVPath: getEnv("UNCLASSIFIED_CSV_PATH", "./output/unclassified_flows.csv"),
		SQLitePath:          getEnv("SQLITE_PATH", ""),
		MetricsTextfile:     getEnv("METRICS_TEXTFILE", ""),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "dio"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "dio"),
		PostgresDB:       getEnv("POSTGRES_DB", "dio"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Workers:      getEnvInt("WORKERS", 4),
		MaxRetries:   getEnvInt("MAX_RETRIES", 3),
		BuildTimeout: getEnvDuration("BUILD_TIMEOUT", 10*time.Minute),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
