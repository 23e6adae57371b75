package quote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultCallTimeout = 15 * time.Second
)

type gatewayRequest struct {
	ID        string   `json:"id"`
	Op        string   `json:"op"`
	Codes     []string `json:"codes,omitempty"`
	Feed      string   `json:"feed,omitempty"`
	Plate     string   `json:"plate,omitempty"`
	SortField string   `json:"sort_field,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type gatewayResponse struct {
	ID      string          `json:"id"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Rows    json.RawMessage `json:"rows,omitempty"`
}

// wsConn is a gateway session over a websocket. Requests carry an id and
// the session reads responses until the matching id arrives, so a single
// caller at a time is assumed. The Manager provides that serialization.
type wsConn struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	callTimeout time.Duration
	nextID      uint64
}

// DialGateway opens a websocket session against the quote gateway.
func DialGateway(dialTimeout, callTimeout time.Duration) Dialer {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return func(ctx context.Context, host string, port int) (Conn, error) {
		endpoint := url.URL{
			Scheme: "ws",
			Host:   host + ":" + strconv.Itoa(port),
			Path:   "/quote",
		}

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint.String(), err)
		}

		return &wsConn{conn: conn, callTimeout: callTimeout}, nil
	}
}

func (c *wsConn) Subscribe(ctx context.Context, codes []string, feed entity.FeedType) error {
	_, err := c.call(ctx, gatewayRequest{Op: "subscribe", Codes: codes, Feed: string(feed)})
	return err
}

func (c *wsConn) Unsubscribe(ctx context.Context, codes []string, feed entity.FeedType) error {
	_, err := c.call(ctx, gatewayRequest{Op: "unsubscribe", Codes: codes, Feed: string(feed)})
	return err
}

func (c *wsConn) QuerySnapshot(ctx context.Context, codes []string) ([]entity.Snapshot, error) {
	rows, err := c.call(ctx, gatewayRequest{Op: "snapshot", Codes: codes})
	if err != nil {
		return nil, err
	}

	var snapshots []entity.Snapshot
	if err := json.Unmarshal(rows, &snapshots); err != nil {
		return nil, fmt.Errorf("decode snapshot rows: %w", err)
	}

	return snapshots, nil
}

func (c *wsConn) QueryPlateRanking(ctx context.Context, plate, sortField string, limit int) ([]entity.PlateRankingRow, error) {
	rows, err := c.call(ctx, gatewayRequest{Op: "plate_ranking", Plate: plate, SortField: sortField, Limit: limit})
	if err != nil {
		return nil, err
	}

	var ranking []entity.PlateRankingRow
	if err := json.Unmarshal(rows, &ranking); err != nil {
		return nil, fmt.Errorf("decode plate ranking rows: %w", err)
	}

	return ranking, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)

	return c.conn.Close()
}

// call sends one request and reads frames until the matching response id
// comes back. Transport failures are wrapped as connection errors; a
// non-zero gateway code is a logical rejection and comes back as a plain
// error for the caller to classify.
func (c *wsConn) call(ctx context.Context, req gatewayRequest) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req.ID = strconv.FormatUint(c.nextID, 10)

	deadline := time.Now().Add(c.callTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, &ConnectionError{Op: req.Op, Err: err}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, &ConnectionError{Op: req.Op, Err: err}
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, &ConnectionError{Op: req.Op, Err: err}
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return nil, &ConnectionError{Op: req.Op, Err: err}
		}

		var resp gatewayResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", req.Op, err)
		}

		if resp.ID != req.ID {
			// Push frames and stale responses are skipped; only the
			// reply to this request matters here.
			continue
		}

		if resp.Code != 0 {
			return nil, fmt.Errorf("gateway rejected %s: %s (code %d)", req.Op, resp.Message, resp.Code)
		}

		return resp.Rows, nil
	}
}
