package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"losslessMarket/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	markets  []model.Market
	loadedAt time.Time
	err      error
}

func (f *fakeSource) Markets() []model.Market {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Market(nil), f.markets...)
}

func (f *fakeSource) Market(address string) (model.Market, bool) {
	for _, m := range f.Markets() {
		if strings.EqualFold(m.Address, address) {
			return m, true
		}
	}
	return model.Market{}, false
}

func (f *fakeSource) Status() (time.Time, error) {
	return f.loadedAt, f.err
}

func sampleMarkets() []model.Market {
	return []model.Market{
		{Address: "0xA1", Question: "Will ETH be above $3,500?", State: model.MarketActive, ResolveDate: 2_000, TargetPrice: "350000000000", TotalYes: "3000000", TotalNo: "1000000"},
		{Address: "0xB2", Question: "Will BTC be above $100,000?", State: model.MarketResolved, WinningSide: model.SideNo, ResolveDate: 500, TotalYes: "0", TotalNo: "7000000"},
		{Address: "0xC3", Question: "Will SOL flip?", State: model.MarketCancelled, ResolveDate: 900, TotalYes: "0", TotalNo: "0"},
	}
}

func newTestServer(source MarketSource) *Server {
	s := New(Config{}, source, NewMetrics(), nil)
	s.now = func() time.Time { return time.Unix(1_000, 0) }
	return s
}

func TestListMarketsFiltersAndSorts(t *testing.T) {
	s := newTestServer(&fakeSource{markets: sampleMarkets(), loadedAt: time.Unix(1, 0)})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/markets?sort=mostStaked")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Counts.All != 3 || body.Counts.Active != 1 || body.Counts.Resolved != 1 || body.Counts.Cancelled != 1 {
		t.Fatalf("counts mismatch: %+v", body.Counts)
	}
	if len(body.Markets) != 3 || body.Markets[0].Address != "0xB2" {
		t.Fatalf("expected most staked first: %+v", body.Markets)
	}

	resp2, err := http.Get(ts.URL + "/markets?state=active")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	var active ListResponse
	if err := json.NewDecoder(resp2.Body).Decode(&active); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(active.Markets) != 1 {
		t.Fatalf("expected one active market, got %d", len(active.Markets))
	}
	m := active.Markets[0]
	if m.Status != "Active" || m.TimeLeftText != "16m 40s" || m.TargetPriceText != "3500" || m.QuestionPrice != "3500" || m.YesShare != "0.7500" || m.TotalStaked != "4" {
		t.Fatalf("derived fields mismatch: %+v", m)
	}
	if active.Counts.All != 3 {
		t.Fatalf("counts must cover every market, got %+v", active.Counts)
	}
}

func TestListMarketsRejectsUnknownSort(t *testing.T) {
	s := newTestServer(&fakeSource{})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets?sort=cheapest", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListMarketsValidatesState(t *testing.T) {
	s := newTestServer(&fakeSource{markets: sampleMarkets()})
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets?state=pending", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", rec.Code)
	}

	for _, state := range []string{"all", "ALL", "canceled"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets?state="+state, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("state %q: expected 200, got %d", state, rec.Code)
		}
	}
}

func TestGetMarket(t *testing.T) {
	s := newTestServer(&fakeSource{markets: sampleMarkets()})
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets/0xb2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var m MarketView
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Status != "Resolved" || m.WinningSideText != "No" || m.TimeLeftText != "Betting ended" {
		t.Fatalf("unexpected market view: %+v", m)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets/0xdead", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	source := &fakeSource{}
	s := newTestServer(source)
	router := s.Router()

	check := func(want int) {
		t.Helper()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != want {
			t.Fatalf("expected %d, got %d (%s)", want, rec.Code, rec.Body.String())
		}
	}

	check(http.StatusServiceUnavailable)
	source.loadedAt = time.Unix(1, 0)
	check(http.StatusOK)

	s.AddHealthCheck(func(ctx context.Context) error { return errors.New("redis down") })
	check(http.StatusServiceUnavailable)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeSource{})
	s.PublishMarkets(sampleMarkets())
	s.PublishNotification(model.TxNotification{TxHash: "0x1", Status: "confirmed"})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"lossless_markets_loaded 3",
		`lossless_markets_by_state{state="active"} 1`,
		`lossless_tx_notifications_total{status="confirmed"} 1`,
		`lossless_market_refreshes_total{result="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	s := newTestServer(&fakeSource{})
	s.PublishMarkets(sampleMarkets()[:1])

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var replay struct {
		Type    string       `json:"type"`
		Payload ListResponse `json:"payload"`
	}
	if err := conn.ReadJSON(&replay); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replay.Type != TopicMarkets || len(replay.Payload.Markets) != 1 {
		t.Fatalf("unexpected replay: %+v", replay)
	}

	// The ping round trip guarantees the server registered the client.
	if err := conn.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong Envelope
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != "pong" {
		t.Fatalf("expected pong, got %+v (%v)", pong, err)
	}

	s.PublishNotification(model.TxNotification{TxHash: "0xabc", Action: "claim", Status: "confirmed"})
	var note struct {
		Type    string               `json:"type"`
		Payload model.TxNotification `json:"payload"`
	}
	if err := conn.ReadJSON(&note); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if note.Type != TopicNotifications || note.Payload.TxHash != "0xabc" {
		t.Fatalf("unexpected notification: %+v", note)
	}
}

func TestBroadcastDoesNotWaitOnFullClient(t *testing.T) {
	h := NewHub(nil, nil, nil)
	slow := &client{send: make(chan []byte, 1)}
	slow.send <- []byte("backlog")
	fast := &client{send: make(chan []byte, 1)}
	h.mu.Lock()
	h.clients[slow] = struct{}{}
	h.clients[fast] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.Broadcast(TopicNotifications, model.TxNotification{TxHash: "0x01"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a full client queue")
	}

	if len(fast.send) != 1 {
		t.Fatalf("fast client should have one queued frame, got %d", len(fast.send))
	}
	if got := string(<-slow.send); got != "backlog" {
		t.Fatalf("full client queue should keep its backlog, got %q", got)
	}
}
