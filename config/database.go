package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"clinicgate"`
	Password string `env:"PASSWORD"                envDefault:"clinicgate"`
	Name     string `env:"NAME"                    envDefault:"clinicgate"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// MaxOpenConns bounds the user store pool; logins are the only hot path.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"10"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration. URI is a redis:// or rediss://
// URL, or a bare host:port.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	// Disabled runs the portal without Redis-backed local copies. The API always needs Redis.
	Disabled bool `env:"DISABLED" envDefault:"false"`
}
