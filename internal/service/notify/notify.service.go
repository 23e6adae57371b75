package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/constant"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/quotepulse/stock-tracker/internal/util"
	"github.com/sirupsen/logrus"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultHandlerTimeout = 30 * time.Second
	digestEntryLimit      = 10
)

// Service consumes ranking updated events and pushes a markdown digest to
// the configured webhook.
type Service struct {
	js         nats.JetStreamContext
	httpClient *http.Client
	webhookURL string
}

func NewService(js nats.JetStreamContext, cfg config.NotifierConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &Service{
		js:         js,
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: cfg.WebhookURL,
	}
}

func (s *Service) JetstreamEventSubscribe(ctx context.Context) error {
	if strings.TrimSpace(s.webhookURL) == "" {
		logrus.Warn("notifier webhook url not configured, skipping subscription")
		return nil
	}

	handlerTimeout := config.Env.NatsJetstream.TimeoutHandler["ranking_updated"]
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}

	_, err := s.js.QueueSubscribe(
		constant.RankingStreamSubjectUpdated,
		constant.RankingNotifyQueueGroup,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(handlerTimeout, msg, s.handleRankingUpdatedEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}

	logrus.WithField("subject", constant.RankingStreamSubjectUpdated).Info("notifier subscribed")

	return nil
}

func (s *Service) handleRankingUpdatedEvent(ctx context.Context, msg *nats.Msg) error {
	var event entity.RankingUpdatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.WithError(err).Error("failed to decode ranking updated event")
		// Undecodable payloads would never succeed, ack and move on.
		return nil
	}

	return s.Push(ctx, &event.Data)
}

// Push renders the digest for a board and posts it to the webhook.
func (s *Service) Push(ctx context.Context, board *entity.RankingBoard) error {
	digest := formatDigest(board)

	payload, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": digest,
		},
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	logrus.WithField("market", board.Market).Info("ranking digest pushed")

	return nil
}

// formatDigest renders a board as webhook markdown. The intersection list
// leads since codes hot on both boards are the ones worth a look, followed
// by the top movers and the turnover leaders.
func formatDigest(board *entity.RankingBoard) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s market digest (%s)\n", strings.ToUpper(board.Market), board.GeneratedAt.Format("2006-01-02 15:04"))

	writeSection(&b, "Hot on both boards", board.Intersection)
	writeSection(&b, "Top movers", board.TopChange)
	writeSection(&b, "Turnover leaders", board.TopTurnover)

	return b.String()
}

func writeSection(b *strings.Builder, title string, entries []entity.RankingEntry) {
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(b, "\n**%s**\n", title)

	limit := len(entries)
	if limit > digestEntryLimit {
		limit = digestEntryLimit
	}

	for _, entry := range entries[:limit] {
		name := entry.Name
		if name == "" {
			name = entry.Code
		}
		fmt.Fprintf(b, "%d. %s (%s) %s%%\n", entry.Rank, name, entry.Code, entry.ChangeRatio.StringFixed(2))
	}
}
