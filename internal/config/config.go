package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CORSAllowOrigins       string
	EventChannelBase       string
	CatalogCacheTTL        time.Duration
	SSEKeepAlive           time.Duration
	WebhookRateLimit       int
	WebhookRateWindow      time.Duration
	SignNowBaseURL         string
	SignNowAPIKey          string
	SignNowTemplateID      string
	SignNowRedirectURL     string
	StripeBaseURL          string
	StripeSecretKey        string
	StripePriceID          string
	StripeSuccessURL       string
	StripeCancelURL        string
	SendGridAPIKey         string
	SendGridFromName       string
	SendGridFromEmail      string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CERTIFY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Certify API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel_base", "certify")
	v.SetDefault("catalog.cache_ttl", "5m")
	v.SetDefault("sse.keep_alive", "30s")
	v.SetDefault("webhook.rate_limit", 120)
	v.SetDefault("webhook.rate_window", "1m")
	v.SetDefault("signnow.base_url", "https://api.signnow.com")
	v.SetDefault("cloudinary.folder", "certify/contracts")

	catalogTTL, err := parseDuration(v, "catalog.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid catalog cache ttl: %w", err)
	}

	keepAlive, err := parseDuration(v, "sse.keep_alive", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sse keep alive: %w", err)
	}

	rateWindow, err := parseDuration(v, "webhook.rate_window", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid webhook rate window: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		EventChannelBase:       v.GetString("events.channel_base"),
		CatalogCacheTTL:        catalogTTL,
		SSEKeepAlive:           keepAlive,
		WebhookRateLimit:       v.GetInt("webhook.rate_limit"),
		WebhookRateWindow:      rateWindow,
		SignNowBaseURL:         v.GetString("signnow.base_url"),
		SignNowAPIKey:          v.GetString("signnow.api_key"),
		SignNowTemplateID:      v.GetString("signnow.template_id"),
		SignNowRedirectURL:     v.GetString("signnow.redirect_url"),
		StripeBaseURL:          v.GetString("stripe.base_url"),
		StripeSecretKey:        v.GetString("stripe.secret_key"),
		StripePriceID:          v.GetString("stripe.price_id"),
		StripeSuccessURL:       v.GetString("stripe.success_url"),
		StripeCancelURL:        v.GetString("stripe.cancel_url"),
		SendGridAPIKey:         v.GetString("sendgrid.api_key"),
		SendGridFromName:       v.GetString("sendgrid.from_name"),
		SendGridFromEmail:      v.GetString("sendgrid.from_email"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.WebhookRateLimit <= 0 {
		cfg.WebhookRateLimit = 120
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	return time.ParseDuration(raw)
}
