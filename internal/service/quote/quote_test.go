package quote

import (
	"testing"
	"time"

	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/constant"
	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("explicit zero disables aging", func(t *testing.T) {
		cfg := ConfigFromEnv(config.QuoteGatewayConfig{MaxConnAge: 0})
		assert.Equal(t, time.Duration(0), cfg.MaxConnAge)
	})

	t.Run("negative disables aging", func(t *testing.T) {
		cfg := ConfigFromEnv(config.QuoteGatewayConfig{MaxConnAge: -time.Second})
		assert.Equal(t, time.Duration(0), cfg.MaxConnAge)
	})

	t.Run("positive age kept", func(t *testing.T) {
		cfg := ConfigFromEnv(config.QuoteGatewayConfig{MaxConnAge: 45 * time.Minute})
		assert.Equal(t, 45*time.Minute, cfg.MaxConnAge)
	})

	t.Run("quota defaults when unset", func(t *testing.T) {
		cfg := ConfigFromEnv(config.QuoteGatewayConfig{})
		assert.Equal(t, constant.DefaultSubscriptionQuota, cfg.SubscriptionQuota)
	})

	t.Run("quota kept when set", func(t *testing.T) {
		cfg := ConfigFromEnv(config.QuoteGatewayConfig{SubscriptionQuota: 150})
		assert.Equal(t, 150, cfg.SubscriptionQuota)
	})
}
