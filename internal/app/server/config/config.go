package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"

	AuthNone = "none"

	// DefaultMaxPayload is the largest accepted payload in bytes.
	DefaultMaxPayload = 262144
	// DefaultQuotaKB is the per-user storage allowance in kilobytes.
	DefaultQuotaKB = 5000
)

type Config struct {
	Env    string
	DB     db
	Server server
	Logger logger
	Limits limits
}

type db struct {
	Engine      string `env:"STORAGE_ENGINE"`
	DatabaseURI string `env:"DATABASE_URI"`
	SQLitePath  string `env:"SQLITE_PATH"`
	Migrations  string `env:"MIGRATIONS_PATH"`
	AuthEngine  string `env:"AUTH_ENGINE"`
}

type server struct {
	RunAddress string `env:"RUN_ADDRESS"`
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type limits struct {
	MaxPayload int `env:"MAX_PAYLOAD_BYTES"`
	QuotaKB    int `env:"QUOTA_KB"`
}

func MustLoad() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	viper.AutomaticEnv()
	config := Config{
		Env: viper.GetString("app_env"),
		DB: db{
			Engine:      viper.GetString("storage_engine"),
			DatabaseURI: viper.GetString("database_uri"),
			SQLitePath:  viper.GetString("sqlite_path"),
			Migrations:  viper.GetString("migrations_path"),
			AuthEngine:  viper.GetString("auth_engine"),
		},
		Server: server{RunAddress: viper.GetString("run_address")},
		Logger: logger{LogLevel: viper.GetString("log_level")},
		Limits: limits{
			MaxPayload: viper.GetInt("max_payload_bytes"),
			QuotaKB:    viper.GetInt("quota_kb"),
		},
	}

	if config.Env == "" {
		config.Env = EnvLocal
	}
	if config.DB.Engine == "" {
		config.DB.Engine = EngineSQLite
	}
	if config.DB.SQLitePath == "" {
		config.DB.SQLitePath = "weave.db"
	}
	if config.DB.AuthEngine == "" {
		// credentials live next to the records unless told otherwise
		config.DB.AuthEngine = config.DB.Engine
	}
	if config.Server.RunAddress == "" {
		config.Server.RunAddress = ":8080"
	}
	if config.Limits.MaxPayload == 0 {
		config.Limits.MaxPayload = DefaultMaxPayload
	}
	if config.Limits.QuotaKB == 0 {
		config.Limits.QuotaKB = DefaultQuotaKB
	}

	return &config
}
