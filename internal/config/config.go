package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var AppEnv Config

type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	TaxRate         decimal.Decimal
	ShippingFee     decimal.Decimal
	ProcessingFee   decimal.Decimal
	Currency        string
	CheckoutTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	KafkaBrokers     []string
	OrderEventsTopic string

	RabbitMQURL string
	SMSExchange string
	OTPTTL      time.Duration
	PhonePrefix string

	UploadDir string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		MongoURI:        getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:          getEnvOrDefault("DB_NAME", "boutique"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),

		TaxRate:         getDecimalEnv("TAX_RATE", "0.05"),
		ShippingFee:     getDecimalEnv("SHIPPING_FEE", "0"),
		ProcessingFee:   getDecimalEnv("PROCESSING_FEE", "0"),
		Currency:        getEnvOrDefault("CURRENCY", "INR"),
		CheckoutTimeout: getDurationEnv("CHECKOUT_TIMEOUT", 10, time.Second),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		CartCacheTTL:  getDurationEnv("CART_CACHE_TTL", 15, time.Minute),

		KafkaBrokers:     getListEnv("KAFKA_BROKERS"),
		OrderEventsTopic: getEnvOrDefault("ORDER_EVENTS_TOPIC", "order-events"),

		RabbitMQURL: getEnvOrDefault("RABBITMQ_URL", ""),
		SMSExchange: getEnvOrDefault("SMS_EXCHANGE", "sms.events"),
		OTPTTL:      getDurationEnv("OTP_TTL", 5, time.Minute),
		PhonePrefix: getEnvOrDefault("PHONE_PREFIX", "+91"),

		UploadDir: getEnvOrDefault("UPLOAD_DIR", "/app/public"),
	}
	if AppEnv.JWTSecret == "" {
		log.Println("[CONFIG] [WARN] JWT_SECRET is empty")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

// getDecimalEnv falls back to defaultValue for unparsable or negative input.
func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && !parsed.IsNegative() {
			return parsed
		}
		log.Printf("[CONFIG] [WARN] invalid %s=%q, using %s", key, value, defaultValue)
	}
	return decimal.RequireFromString(defaultValue)
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
