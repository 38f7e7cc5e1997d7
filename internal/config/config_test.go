package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Default Values", func(t *testing.T) {
		cfg, err := LoadConfig()
		assert.NoError(t, err)
		assert.Equal(t, "local", cfg.AppEnv)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
		assert.Equal(t, "USD", cfg.DefaultCurrency)
		assert.Equal(t, 10.0, cfg.DefaultCommissionRate)
		assert.Equal(t, 30, cfg.ReferralExpiryDays)
		assert.Equal(t, time.Hour, cfg.ExpirySweepInterval)
		assert.Equal(t, "referral-events", cfg.KafkaTopic)
		assert.Empty(t, cfg.Brokers())
	})

	t.Run("Environment Variables", func(t *testing.T) {
		t.Setenv("PORT", "9999")
		t.Setenv("DEFAULT_COMMISSION_RATE", "12.5")
		t.Setenv("EXPIRY_SWEEP_INTERVAL", "15m")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

		cfg, err := LoadConfig()
		assert.NoError(t, err)
		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 12.5, cfg.DefaultCommissionRate)
		assert.Equal(t, 15*time.Minute, cfg.ExpirySweepInterval)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	})
}
