package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBoard() *entity.RankingBoard {
	entry := func(rank int, code, name string, change float64) entity.RankingEntry {
		return entity.RankingEntry{
			Rank:        rank,
			Code:        code,
			Name:        name,
			ChangeRatio: decimal.NewFromFloat(change),
		}
	}

	return &entity.RankingBoard{
		Market:      "cn",
		TopChange:   []entity.RankingEntry{entry(1, "SH.600519", "Moutai", 5.21), entry(2, "SH.600000", "SPDB", 3.1)},
		TopTurnover: []entity.RankingEntry{entry(1, "SH.600519", "Moutai", 5.21)},
		Intersection: []entity.RankingEntry{
			entry(1, "SH.600519", "Moutai", 5.21),
		},
		GeneratedAt: time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC),
	}
}

func TestFormatDigest(t *testing.T) {
	digest := formatDigest(testBoard())

	assert.Contains(t, digest, "## CN market digest (2026-02-10 15:00)")
	assert.Contains(t, digest, "**Hot on both boards**")
	assert.Contains(t, digest, "**Top movers**")
	assert.Contains(t, digest, "**Turnover leaders**")
	assert.Contains(t, digest, "1. Moutai (SH.600519) 5.21%")
	assert.Contains(t, digest, "2. SPDB (SH.600000) 3.10%")

	// The intersection leads the digest.
	assert.Less(t, strings.Index(digest, "Hot on both boards"), strings.Index(digest, "Top movers"))
	assert.Less(t, strings.Index(digest, "Top movers"), strings.Index(digest, "Turnover leaders"))
}

func TestFormatDigestSkipsEmptySections(t *testing.T) {
	board := testBoard()
	board.Intersection = nil

	digest := formatDigest(board)
	assert.NotContains(t, digest, "Hot on both boards")
}

func TestFormatDigestCapsEntries(t *testing.T) {
	board := testBoard()
	board.TopChange = nil
	for i := 0; i < 30; i++ {
		board.TopChange = append(board.TopChange, entity.RankingEntry{Rank: i + 1, Code: "X"})
	}

	digest := formatDigest(board)
	assert.Contains(t, digest, "10. X")
	assert.NotContains(t, digest, "11. X")
}

func TestServicePush(t *testing.T) {
	t.Run("posts markdown payload", func(t *testing.T) {
		var body []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService(nil, config.NotifierConfig{WebhookURL: server.URL})

		err := svc.Push(context.Background(), testBoard())
		require.NoError(t, err)

		var payload struct {
			MsgType  string `json:"msgtype"`
			Markdown struct {
				Content string `json:"content"`
			} `json:"markdown"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "markdown", payload.MsgType)
		assert.Contains(t, payload.Markdown.Content, "CN market digest")
	})

	t.Run("non 2xx status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		svc := NewService(nil, config.NotifierConfig{WebhookURL: server.URL})

		err := svc.Push(context.Background(), testBoard())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}
