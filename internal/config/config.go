package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provision configures the link provisioning service.
type Provision struct {
	Port            string
	DatabaseURL     string
	RabbitURL       string
	EventExchange   string
	QuotaServiceURL string
	// PublicBaseURL is the resolver's public origin used to derive shortened
	// URLs. Injected here so nothing deeper reads the process environment.
	PublicBaseURL string
	GormLogLevel  string
}

// Resolver configures the public redirect service.
type Resolver struct {
	Port          string
	DatabaseURL   string
	RabbitURL     string
	EventExchange string
	// InvalidationQueue is this process's private binding on the event
	// exchange, used to drop cache entries for mutated links.
	InvalidationQueue string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CacheTTL          time.Duration
	NegativeTTL       time.Duration
	GormLogLevel      string
}

// Analytics configures the event consumer and the query API.
type Analytics struct {
	Port            string
	DatabaseURL     string
	RabbitURL       string
	EventExchange   string
	EventQueue      string
	QuotaServiceURL string
	Prefetch        int
	GormLogLevel    string
}

// Quota configures the quota authority service.
type Quota struct {
	Port         string
	DatabaseURL  string
	GormLogLevel string
}

func LoadProvision() Provision {
	return Provision{
		Port:            getenv("PROVISION_PORT", ":3001"),
		DatabaseURL:     os.Getenv("DB_URL"),
		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		EventExchange:   getenv("EVENT_EXCHANGE_NAME", "shortlink_events"),
		QuotaServiceURL: getenv("QUOTA_SERVICE_URL", "http://localhost:3004"),
		PublicBaseURL:   strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:3002"), "/"),
		GormLogLevel:    os.Getenv("GORM_LOG_LEVEL"),
	}
}

func LoadResolver() Resolver {
	return Resolver{
		Port:              getenv("RESOLVER_PORT", ":3002"),
		DatabaseURL:       os.Getenv("DB_URL"),
		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		EventExchange:     getenv("EVENT_EXCHANGE_NAME", "shortlink_events"),
		InvalidationQueue: getenv("RESOLVER_INVALIDATION_QUEUE", "shortlink_events_resolver"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getenvInt("REDIS_DB", 0),
		CacheTTL:          getenvDuration("RESOLVER_CACHE_TTL", time.Hour),
		NegativeTTL:       getenvDuration("RESOLVER_NEGATIVE_TTL", 5*time.Minute),
		GormLogLevel:      os.Getenv("GORM_LOG_LEVEL"),
	}
}

func LoadAnalytics() Analytics {
	return Analytics{
		Port:            getenv("ANALYTICS_PORT", ":3003"),
		DatabaseURL:     os.Getenv("DB_URL"),
		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		EventExchange:   getenv("EVENT_EXCHANGE_NAME", "shortlink_events"),
		EventQueue:      getenv("EVENT_QUEUE_NAME", "shortlink_events_analytics"),
		QuotaServiceURL: getenv("QUOTA_SERVICE_URL", "http://localhost:3004"),
		Prefetch:        getenvInt("EVENT_PREFETCH", 100),
		GormLogLevel:    os.Getenv("GORM_LOG_LEVEL"),
	}
}

func LoadQuota() Quota {
	return Quota{
		Port:         getenv("QUOTA_PORT", ":3004"),
		DatabaseURL:  os.Getenv("DB_URL"),
		GormLogLevel: os.Getenv("GORM_LOG_LEVEL"),
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
