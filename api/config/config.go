package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	Port         string
	BindAddr     string
	DatabaseURL  string // empty disables report history and the durable audit store
	ServicesFile string
	Cluster      string // overrides the cluster name from the services file
	UIDir        string
	APIToken     string

	NomadAddr  string // Nomad API address
	ConsulAddr string // Consul API address

	TunnelConfig string // forwards file rewritten during remediation
	TunnelReload string // command run after a forwards rewrite

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3UseSSL    bool

	AllowedOrigins string

	AttemptTimeout time.Duration
	Cooldown       time.Duration
}

func Load() *Config {
	return &Config{
		Port:         envOr("WARDEN_PORT", "7070"),
		BindAddr:     envOr("WARDEN_BIND_ADDR", "127.0.0.1"),
		DatabaseURL:  os.Getenv("WARDEN_DATABASE_URL"),
		ServicesFile: envOr("WARDEN_SERVICES_FILE", "services.yaml"),
		Cluster:      os.Getenv("WARDEN_CLUSTER"),
		UIDir:        envOr("WARDEN_UI_DIR", ""),
		APIToken:     os.Getenv("WARDEN_API_TOKEN"),

		NomadAddr:  envOr("WARDEN_NOMAD_ADDR", "http://localhost:4646"),
		ConsulAddr: envOr("WARDEN_CONSUL_ADDR", "http://localhost:8500"),

		TunnelConfig: os.Getenv("WARDEN_TUNNEL_CONFIG"),
		TunnelReload: os.Getenv("WARDEN_TUNNEL_RELOAD"),

		S3Endpoint:  os.Getenv("WARDEN_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("WARDEN_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("WARDEN_S3_SECRET_KEY"),
		S3Region:    envOr("WARDEN_S3_REGION", "auto"),
		S3Bucket:    envOr("WARDEN_S3_BUCKET", "warden-audit"),
		S3UseSSL:    os.Getenv("WARDEN_S3_USE_SSL") != "false",

		AllowedOrigins: os.Getenv("WARDEN_ALLOWED_ORIGINS"),

		AttemptTimeout: durationOr("WARDEN_ATTEMPT_TIMEOUT", 10*time.Minute),
		Cooldown:       durationOr("WARDEN_COOLDOWN", 5*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
