package quote

import (
	"context"
	"time"

	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/constant"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

// Conn is a live session against the quote gateway. Implementations are
// expected to be safe for use by one caller at a time; the Manager
// serializes access through its connection mutex.
type Conn interface {
	Subscribe(ctx context.Context, codes []string, feed entity.FeedType) error
	Unsubscribe(ctx context.Context, codes []string, feed entity.FeedType) error
	QuerySnapshot(ctx context.Context, codes []string) ([]entity.Snapshot, error)
	QueryPlateRanking(ctx context.Context, plate, sortField string, limit int) ([]entity.PlateRankingRow, error)
	Close() error
}

// Dialer opens a new gateway session. Returned errors are wrapped by the
// Manager as connection errors.
type Dialer func(ctx context.Context, host string, port int) (Conn, error)

type Config struct {
	Host              string
	Port              int
	SubscriptionQuota int
	// MaxConnAge bounds the lifetime of a gateway session. Zero disables
	// age-based replacement.
	MaxConnAge time.Duration
}

// ConfigFromEnv applies the gateway defaults to an environment config. A
// zero or negative max_conn_age disables age-based replacement; the unset
// default of 30m is applied by config.LoadConfig.
func ConfigFromEnv(cfg config.QuoteGatewayConfig) Config {
	quota := cfg.SubscriptionQuota
	if quota <= 0 {
		quota = constant.DefaultSubscriptionQuota
	}

	age := cfg.MaxConnAge
	if age < 0 {
		age = 0
	}

	return Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		SubscriptionQuota: quota,
		MaxConnAge:        age,
	}
}
