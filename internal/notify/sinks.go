package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ElasticsearchSink indexes events into a daily index <prefix>YYYY.MM.DD.
type ElasticsearchSink struct {
	URL    string
	Prefix string
	client *http.Client
}

// NewElasticsearchSink creates a sink posting to baseURL.
func NewElasticsearchSink(baseURL, prefix string) *ElasticsearchSink {
	return &ElasticsearchSink{
		URL:    strings.TrimRight(baseURL, "/"),
		Prefix: prefix,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

// IndexName returns the index for an event time.
func (s *ElasticsearchSink) IndexName(t time.Time) string {
	return s.Prefix + t.UTC().Format("2006.01.02")
}

func (s *ElasticsearchSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/_doc", s.URL, s.IndexName(e.Timestamp))
	return postJSON(ctx, s.client, url, body)
}

// GraylogSink sends GELF 1.1 messages over UDP.
type GraylogSink struct {
	Addr string
}

func NewGraylogSink(addr string) *GraylogSink {
	return &GraylogSink{Addr: addr}
}

func (s *GraylogSink) Name() string { return "graylog" }

var gelfLevels = map[Level]int{
	LevelDebug:    7,
	LevelInfo:     6,
	LevelWarning:  4,
	LevelError:    3,
	LevelCritical: 2,
}

// GELF renders e as a GELF message. Custom fields get a leading underscore.
func GELF(e Event) map[string]interface{} {
	short := e.Message
	if r := []rune(short); len(r) > 250 {
		short = string(r[:250])
	}
	level, ok := gelfLevels[e.Level]
	if !ok {
		level = 6
	}
	msg := map[string]interface{}{
		"version":       "1.1",
		"host":          "topomon",
		"short_message": short,
		"full_message":  e.Message,
		"timestamp":     float64(e.Timestamp.UnixNano()) / 1e9,
		"level":         level,
		"_source":       e.Source,
	}
	add := func(k string, v string) {
		if v != "" {
			msg["_"+k] = v
		}
	}
	add("device_hostname", e.DeviceHostname)
	add("device_ip", e.DeviceIP)
	add("target", e.Target)
	add("alert_type", e.AlertType)
	add("alert_severity", e.AlertSeverity)
	add("metric_name", e.MetricName)
	if e.MetricValue != nil {
		msg["_metric_value"] = *e.MetricValue
	}
	if e.ThresholdValue != nil {
		msg["_threshold_value"] = *e.ThresholdValue
	}
	for k, v := range e.Extra {
		msg["_"+k] = v
	}
	return msg
}

func (s *GraylogSink) Send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(GELF(e))
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", s.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", s.Addr, err)
	}
	return nil
}

// DiscordSink posts alert embeds to a webhook, paced to stay under the
// webhook rate limit.
type DiscordSink struct {
	URL     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		URL:     webhookURL,
		client:  &http.Client{Timeout: 8 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

func (s *DiscordSink) Name() string { return "discord" }

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

var discordColors = map[Level]int{
	LevelCritical: 0xDC2626,
	LevelError:    0xDC2626,
	LevelWarning:  0xF97316,
	LevelInfo:     0x16A34A,
}

func (s *DiscordSink) Send(ctx context.Context, e Event) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	embed := discordEmbed{
		Title:       strings.TrimSpace(string(e.Level) + " " + e.AlertType),
		Description: e.Message,
		Color:       discordColors[e.Level],
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
	}
	if e.DeviceHostname != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Device", Value: e.DeviceHostname, Inline: true})
	}
	if e.MetricValue != nil {
		embed.Fields = append(embed.Fields, discordField{Name: "Value", Value: fmt.Sprintf("%.1f", *e.MetricValue), Inline: true})
	}
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	return postJSON(ctx, s.client, s.URL, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}
