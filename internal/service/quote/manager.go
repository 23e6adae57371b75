package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quotepulse/stock-tracker/internal/constant"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/sirupsen/logrus"
)

// Manager owns the single shared gateway session and the subscription
// ledger behind it. All gateway traffic for the process goes through one
// Manager so the per-session subscription quota is enforced in one place.
//
// Lock order: connMu before ledgerMu. ledgerMu is never held across a
// connection acquire.
type Manager struct {
	cfg  Config
	dial Dialer

	connMu      sync.Mutex
	conn        Conn
	connectedAt time.Time

	ledgerMu sync.Mutex
	subs     *ledger

	now func() time.Time
}

func NewManager(cfg Config, dial Dialer) *Manager {
	if cfg.SubscriptionQuota <= 0 {
		cfg.SubscriptionQuota = constant.DefaultSubscriptionQuota
	}

	return &Manager{
		cfg:  cfg,
		dial: dial,
		subs: newLedger(),
		now:  time.Now,
	}
}

// Acquire returns the shared gateway session, dialing one if none is live.
// A session past MaxConnAge is torn down and replaced before returning,
// which also empties the ledger since subscriptions do not survive the old
// session.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) (Conn, error) {
	if m.conn != nil && m.cfg.MaxConnAge > 0 {
		age := m.now().Sub(m.connectedAt)
		if age >= m.cfg.MaxConnAge {
			logrus.WithFields(logrus.Fields{
				"age":          age.String(),
				"max_conn_age": m.cfg.MaxConnAge.String(),
			}).Info("gateway session aged out, replacing")
			m.dropLocked()
		}
	}

	if m.conn != nil {
		return m.conn, nil
	}

	conn, err := m.dial(ctx, m.cfg.Host, m.cfg.Port)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	m.conn = conn
	m.connectedAt = m.now()

	logrus.WithFields(logrus.Fields{
		"host": m.cfg.Host,
		"port": m.cfg.Port,
	}).Info("gateway session established")

	return m.conn, nil
}

// Reset discards the current session so the next Acquire dials fresh.
// Callers use it after a connection error before retrying once.
func (m *Manager) Reset() {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return
	}

	logrus.Info("gateway session reset")
	m.dropLocked()
}

// Teardown closes the session for good, typically at shutdown.
func (m *Manager) Teardown() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	m.connectedAt = time.Time{}

	m.ledgerMu.Lock()
	m.subs.clear()
	m.ledgerMu.Unlock()

	if err != nil {
		return &ConnectionError{Op: "close", Err: err}
	}

	return nil
}

// dropLocked closes and forgets the session. Close failures are logged and
// swallowed since the session is being discarded either way. Requires connMu.
func (m *Manager) dropLocked() {
	if err := m.conn.Close(); err != nil {
		logrus.WithError(err).Warn("closing gateway session")
	}
	m.conn = nil
	m.connectedAt = time.Time{}

	m.ledgerMu.Lock()
	m.subs.clear()
	m.ledgerMu.Unlock()
}

// EnsureSubscribed makes the given codes live on the given feed, evicting
// least-recently-used subscriptions when the quota would be exceeded. Codes
// already live are refreshed without a gateway call; when every code is
// already live no gateway traffic happens at all.
func (m *Manager) EnsureSubscribed(ctx context.Context, codes []string, feed entity.FeedType) error {
	if len(codes) == 0 {
		return nil
	}

	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}

	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	now := m.now()

	seen := make(map[string]struct{}, len(codes))
	needed := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		k := subKey{code: code, feed: feed}
		if m.subs.has(k) {
			m.subs.touch(k, now)
			continue
		}
		needed = append(needed, code)
	}

	if len(needed) == 0 {
		return nil
	}

	if len(needed) > m.cfg.SubscriptionQuota {
		return &AdmissionError{
			Feed:  feed,
			Codes: needed,
			Err:   fmt.Errorf("request of %d codes exceeds subscription quota %d", len(needed), m.cfg.SubscriptionQuota),
		}
	}

	shortfall := len(needed) - (m.cfg.SubscriptionQuota - m.subs.len())
	if shortfall > 0 {
		if err := m.evictLocked(ctx, conn, feed, shortfall); err != nil {
			return err
		}
	}

	if err := conn.Subscribe(ctx, needed, feed); err != nil {
		if IsConnectionError(err) {
			return err
		}
		return &AdmissionError{Feed: feed, Codes: needed, Err: err}
	}

	for _, code := range needed {
		m.subs.touch(subKey{code: code, feed: feed}, now)
	}

	logrus.WithFields(logrus.Fields{
		"feed":       string(feed),
		"subscribed": len(needed),
		"ledger":     m.subs.len(),
	}).Debug("subscriptions ensured")

	return nil
}

// evictLocked frees at least n ledger slots by unsubscribing the
// least-recently-used entries, same-feed victims first. A failed
// unsubscribe is logged and its entries kept in the ledger; the freed
// count from the remaining groups may then fall short, which surfaces as
// a subscribe rejection rather than an error here. Requires ledgerMu.
func (m *Manager) evictLocked(ctx context.Context, conn Conn, feed entity.FeedType, n int) error {
	victims := m.subs.victims(feed, n)

	byFeed := make(map[entity.FeedType][]string)
	for _, v := range victims {
		byFeed[v.feed] = append(byFeed[v.feed], v.code)
	}

	for victimFeed, victimCodes := range byFeed {
		if err := conn.Unsubscribe(ctx, victimCodes, victimFeed); err != nil {
			if IsConnectionError(err) {
				return err
			}
			logrus.WithError(err).WithFields(logrus.Fields{
				"feed":  string(victimFeed),
				"codes": len(victimCodes),
			}).Warn("eviction unsubscribe failed, entries retained")
			continue
		}
		for _, code := range victimCodes {
			m.subs.remove(subKey{code: code, feed: victimFeed})
		}
	}

	return nil
}

// GetSnapshots fetches snapshots for the given codes, splitting the request
// into gateway-sized chunks. Any failed chunk fails the whole read; rows
// from earlier chunks are discarded.
func (m *Manager) GetSnapshots(ctx context.Context, codes []string) ([]entity.Snapshot, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	conn, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	chunks := (len(codes) + constant.SnapshotChunkLimit - 1) / constant.SnapshotChunkLimit
	rows := make([]entity.Snapshot, 0, len(codes))

	for i := 0; i < chunks; i++ {
		start := i * constant.SnapshotChunkLimit
		end := start + constant.SnapshotChunkLimit
		if end > len(codes) {
			end = len(codes)
		}

		chunkRows, err := conn.QuerySnapshot(ctx, codes[start:end])
		if err != nil {
			if IsConnectionError(err) {
				return nil, err
			}
			return nil, &BatchError{Chunk: i + 1, Chunks: chunks, Err: err}
		}
		rows = append(rows, chunkRows...)
	}

	return rows, nil
}

// GetPlateRanking queries the gateway's ranked constituent list for a plate.
func (m *Manager) GetPlateRanking(ctx context.Context, plate, sortField string, limit int) ([]entity.PlateRankingRow, error) {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return conn.QueryPlateRanking(ctx, plate, sortField, limit)
}

// SubscriptionCount reports the live ledger size, mainly for observability.
func (m *Manager) SubscriptionCount() int {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	return m.subs.len()
}
