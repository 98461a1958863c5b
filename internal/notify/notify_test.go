package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/util"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	block  chan struct{}
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(_ context.Context, e Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.fail {
		return errors.New("destination down")
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{fail: true}
	d := NewDispatcher(8, a, b)
	d.Start(context.Background())

	for i := 0; i < 3; i++ {
		d.Publish(Event{Source: "test", Message: "hello"})
	}
	d.Close()

	if a.count() != 3 || b.count() != 3 {
		t.Errorf("delivered %d/%d, want 3/3", a.count(), b.count())
	}
	d.Publish(Event{Source: "late"})
	if a.count() != 3 {
		t.Error("publish after close delivered")
	}
}

func TestDispatcherDrainsAfterCancel(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(8, sink)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < 4; i++ {
		d.Publish(Event{Source: "shutdown"})
	}
	cancel()
	close(sink.block)
	d.Close()

	if sink.count() != 4 {
		t.Errorf("delivered %d, want 4 queued events after cancel", sink.count())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(1, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Publish(Event{Source: "burst"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	if d.Dropped() != 4 {
		t.Errorf("dropped = %d, want 4", d.Dropped())
	}
	close(sink.block)
}

func TestDispatcherWithoutSinksIsNoop(t *testing.T) {
	d := FromConfig(util.NotifyConfig{QueueSize: 4})
	if d.Sinks() != 0 {
		t.Fatalf("sinks = %d", d.Sinks())
	}
	d.Publish(Event{})
	d.Close()

	full := FromConfig(util.NotifyConfig{
		ElasticsearchURL: "http://es:9200",
		GraylogAddr:      "graylog:12201",
		DiscordWebhook:   "https://discord.test/hook",
		QueueSize:        4,
	})
	if full.Sinks() != 3 {
		t.Errorf("sinks = %d, want 3", full.Sinks())
	}
}

func TestElasticsearchSink(t *testing.T) {
	var gotPath string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewElasticsearchSink(srv.URL+"/", "topomon-")
	ts := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	err := sink.Send(context.Background(), Event{Timestamp: ts, Level: LevelWarning, Message: "cpu high", MetricValue: model.Float(85)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/topomon-2024.03.09/_doc" {
		t.Errorf("path = %s", gotPath)
	}
	if got.Message != "cpu high" || got.MetricValue == nil || *got.MetricValue != 85 {
		t.Errorf("document = %+v", got)
	}
}

func TestElasticsearchSinkReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if err := NewElasticsearchSink(srv.URL, "x-").Send(context.Background(), Event{}); err == nil {
		t.Error("expected error on 400")
	}
}

func TestGraylogSink(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	sink := NewGraylogSink(conn.LocalAddr().String())
	e := Event{
		Timestamp:   time.Unix(1700000000, 0),
		Level:       LevelCritical,
		Source:      "alert_engine",
		Message:     "link saturated",
		AlertType:   string(model.AlertLinkHighUtilization),
		MetricValue: model.Float(93.5),
		Extra:       map[string]interface{}{"alert_id": 7},
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(buf[:n], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg["version"] != "1.1" || msg["level"] != float64(2) || msg["_alert_type"] != "link_high_utilization" ||
		msg["_metric_value"] != 93.5 || msg["_alert_id"] != float64(7) || msg["timestamp"] != float64(1700000000) {
		t.Errorf("gelf = %v", msg)
	}
}

func TestGELFShortMessageKeepsRunes(t *testing.T) {
	long := strings.Repeat("é", 300)
	short, ok := GELF(Event{Message: long})["short_message"].(string)
	if !ok || !utf8.ValidString(short) || utf8.RuneCountInString(short) != 250 {
		t.Errorf("short_message has %d runes, valid=%v", utf8.RuneCountInString(short), utf8.ValidString(short))
	}
	if GELF(Event{Message: "ok"})["short_message"] != "ok" {
		t.Error("short message altered")
	}
}

func TestDiscordSink(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := Event{Level: LevelCritical, AlertType: "cpu_high", Message: "core1 CPU critical", DeviceHostname: "core1", MetricValue: model.Float(96)}
	if err := NewDiscordSink(srv.URL).Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "CRITICAL cpu_high" || len(payload.Embeds[0].Fields) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestAlertEvent(t *testing.T) {
	tr := model.AlertTransition{
		Change: model.AlertChange{
			Kind: model.ChangeRecover, Target: model.DeviceTarget(4), Type: model.AlertCPUHigh,
			Event: model.AlertCPUNormal, Metric: model.MetricCPU, Value: model.Float(40),
			Message: "core1 CPU recovered: 40.0%",
		},
		Alert: model.Alert{ID: 9},
	}
	e := AlertEvent(tr, &model.Device{Hostname: "core1", IP: "10.0.0.1"})
	if e.Level != LevelInfo || e.AlertType != "cpu_normal" || e.Target != "device:4" || e.DeviceIP != "10.0.0.1" || e.Extra["alert_id"] != int64(9) {
		t.Errorf("event = %+v", e)
	}
}
