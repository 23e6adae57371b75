package quote

import (
	"testing"
	"time"

	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/stretchr/testify/assert"
)

func TestLedgerVictims(t *testing.T) {
	base := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	build := func(entries map[subKey]time.Duration) *ledger {
		l := newLedger()
		for k, offset := range entries {
			l.touch(k, base.Add(offset))
		}
		return l
	}

	t.Run("oldest first within the requested feed", func(t *testing.T) {
		l := build(map[subKey]time.Duration{
			{code: "A", feed: entity.FeedTypeQuote}: 0,
			{code: "B", feed: entity.FeedTypeQuote}: time.Second,
			{code: "C", feed: entity.FeedTypeQuote}: 2 * time.Second,
		})

		got := l.victims(entity.FeedTypeQuote, 2)
		assert.Equal(t, []subKey{
			{code: "A", feed: entity.FeedTypeQuote},
			{code: "B", feed: entity.FeedTypeQuote},
		}, got)
	})

	t.Run("same feed entries beat older entries on other feeds", func(t *testing.T) {
		l := build(map[subKey]time.Duration{
			{code: "A", feed: entity.FeedTypeRTBar}: 0,
			{code: "B", feed: entity.FeedTypeQuote}: time.Minute,
		})

		got := l.victims(entity.FeedTypeQuote, 1)
		assert.Equal(t, []subKey{{code: "B", feed: entity.FeedTypeQuote}}, got)
	})

	t.Run("spills into other feeds once the pool runs dry", func(t *testing.T) {
		l := build(map[subKey]time.Duration{
			{code: "A", feed: entity.FeedTypeRTBar}: 0,
			{code: "B", feed: entity.FeedTypeRTBar}: time.Second,
			{code: "C", feed: entity.FeedTypeQuote}: 2 * time.Second,
		})

		got := l.victims(entity.FeedTypeQuote, 2)
		assert.Equal(t, []subKey{
			{code: "C", feed: entity.FeedTypeQuote},
			{code: "A", feed: entity.FeedTypeRTBar},
		}, got)
	})

	t.Run("ties on last used break by code", func(t *testing.T) {
		l := build(map[subKey]time.Duration{
			{code: "B", feed: entity.FeedTypeQuote}: 0,
			{code: "A", feed: entity.FeedTypeQuote}: 0,
		})

		got := l.victims(entity.FeedTypeQuote, 1)
		assert.Equal(t, []subKey{{code: "A", feed: entity.FeedTypeQuote}}, got)
	})

	t.Run("never returns more than requested or available", func(t *testing.T) {
		l := build(map[subKey]time.Duration{
			{code: "A", feed: entity.FeedTypeQuote}: 0,
		})

		assert.Len(t, l.victims(entity.FeedTypeQuote, 5), 1)
		assert.Nil(t, l.victims(entity.FeedTypeQuote, 0))
		assert.Nil(t, newLedger().victims(entity.FeedTypeQuote, 3))
	})
}
