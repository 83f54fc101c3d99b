package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/libs/config"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/availability"
)

type settings struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"reservation-service"`
	Port        string `envconfig:"PORT" default:"8080"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9090"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID string `envconfig:"KAFKA_GROUP_ID" default:"reservation-service"`
	PaymentTopic string `envconfig:"KAFKA_PAYMENT_TOPIC" default:"payment.verified.v1"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	FieldTimezone string        `envconfig:"FIELD_TIMEZONE" default:"Asia/Jakarta"`
	HorizonDays   int           `envconfig:"BOOKING_HORIZON_DAYS" default:"7"`
	PricingPolicy string        `envconfig:"PRICING_POLICY" default:"start_hour"`
	SweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"30s"`
	SweepBatch    int           `envconfig:"EXPIRY_SWEEP_BATCH" default:"100"`

	CORSOrigins    string        `envconfig:"CORS_ALLOWED_ORIGINS"`
	BookRateLimit  int           `envconfig:"BOOK_RATE_LIMIT" default:"20"`
	BookRateWindow time.Duration `envconfig:"BOOK_RATE_WINDOW" default:"1m"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"65536"`

	location *time.Location
	pricing  availability.PricingPolicy
}

func loadSettings() (settings, error) {
	var s settings
	if err := config.Load("", &s); err != nil {
		return settings{}, err
	}
	if strings.TrimSpace(s.JWTSecret) == "" {
		return settings{}, fmt.Errorf("JWT_SECRET is required")
	}
	var err error
	if s.Port, err = config.Port("PORT", s.Port); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", s.GRPCPort); err != nil {
		return settings{}, err
	}
	if s.location, err = time.LoadLocation(s.FieldTimezone); err != nil {
		return settings{}, fmt.Errorf("FIELD_TIMEZONE: %w", err)
	}
	if s.pricing, err = availability.ParsePricingPolicy(s.PricingPolicy); err != nil {
		return settings{}, fmt.Errorf("PRICING_POLICY: %w", err)
	}
	if s.HorizonDays <= 0 {
		return settings{}, fmt.Errorf("BOOKING_HORIZON_DAYS must be positive")
	}
	return s, nil
}
