package config

import (
	"os"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	TwitterClientID       string
	TwitterClientSecret   string
	LinkedinClientID      string
	LinkedinClientSecret  string
	InstagramClientID     string
	InstagramClientSecret string
	TiktokClientKey       string
	TiktokClientSecret    string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	AnthropicAPIKey       string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	SecretKey             string
	CookieName            string
	SchedulerTick         time.Duration
	PublishTimeout        time.Duration
	PostingReclaimAfter   time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
		AnthropicAPIKey:       getEnv("ANTHROPIC_API_KEY", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:           getEnv("SECRET_KEY", ""),
		CookieName:          getEnv("COOKIE_NAME", ""),
		SchedulerTick:       getEnvDuration("SCHEDULER_TICK", time.Minute),
		PublishTimeout:      getEnvDuration("PUBLISH_TIMEOUT", 60*time.Second),
		PostingReclaimAfter: getEnvDuration("POSTING_RECLAIM_AFTER", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
