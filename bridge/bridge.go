// Package bridge polls an energy monitor vendor API and republishes
// readings to MQTT with Home Assistant discovery metadata.
package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

// Config for the telemetry bridge.
type Config struct {
	ServerHost     string
	DeviceID       string
	MQTTBroker     string
	MQTTUser       string
	MQTTPassword   string
	MQTTClientID   string
	RealtimePoll   time.Duration
	TotalsPoll     time.Duration
	SessionRefresh time.Duration
}

// Bridge owns the poll loops and the MQTT connection.
type Bridge struct {
	cfg    Config
	mqtt   mqtt.Client
	client *http.Client
	mu     sync.Mutex

	sessionStarted time.Time
	stop           chan struct{}
	wg             sync.WaitGroup
}

// New creates a bridge. Connect happens in Start.
func New(cfg Config) *Bridge {
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "LumenTree"
	}
	if cfg.RealtimePoll <= 0 {
		cfg.RealtimePoll = 2 * time.Second
	}
	if cfg.TotalsPoll <= 0 {
		cfg.TotalsPoll = 180 * time.Second
	}
	if cfg.SessionRefresh <= 0 {
		cfg.SessionRefresh = time.Hour
	}

	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		stop:   make(chan struct{}),
	}
}

// Start connects to the broker, publishes discovery config and begins
// the poll loops.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.MQTTBroker).
		SetClientID(b.cfg.MQTTClientID).
		SetUsername(b.cfg.MQTTUser).
		SetPassword(b.cfg.MQTTPassword).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Infof("%s Connected to broker %s", logcolors.LogBridgeMQTT, b.cfg.MQTTBroker)
			b.publishDiscovery()
		})

	b.mqtt = mqtt.NewClient(opts)
	if token := b.mqtt.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", token.Error())
	}

	b.sessionStarted = time.Now()

	b.wg.Add(2)
	go b.loop(b.cfg.RealtimePoll, b.pollRealtime)
	go b.loop(b.cfg.TotalsPoll, b.pollTotals)

	log.Infof("%s Bridge started for device %s", logcolors.LogBridge, b.cfg.DeviceID)
	return nil
}

// Stop halts the poll loops and disconnects from the broker.
func (b *Bridge) Stop() {
	close(b.stop)
	b.wg.Wait()
	if b.mqtt != nil {
		b.mqtt.Disconnect(250)
	}
	log.Infof("%s Bridge stopped", logcolors.LogBridge)
}

func (b *Bridge) loop(interval time.Duration, fn func()) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ticker.C:
			b.maybeRotateSession()
			fn()
		case <-b.stop:
			return
		}
	}
}

// maybeRotateSession resets the HTTP client hourly. The vendor API
// invalidates long-lived sessions server side.
func (b *Bridge) maybeRotateSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.sessionStarted) < b.cfg.SessionRefresh {
		return
	}
	b.client.CloseIdleConnections()
	b.client = &http.Client{Timeout: 10 * time.Second}
	b.sessionStarted = time.Now()
	log.Infof("%s Rotated API session", logcolors.LogBridge)
}

func (b *Bridge) fetchJSON(url string, out interface{}) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Origin", b.cfg.ServerHost)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *Bridge) pollRealtime() {
	url := fmt.Sprintf("%s/api/realtime/%s", b.cfg.ServerHost, b.cfg.DeviceID)

	var payload struct {
		Data *RealtimeData `json:"data"`
	}
	if err := b.fetchJSON(url, &payload); err != nil {
		log.Warnf("%s Realtime poll failed: %v", logcolors.LogBridge, err)
		return
	}
	if payload.Data == nil {
		log.Debugf("%s No realtime data", logcolors.LogBridge)
		return
	}

	for _, reading := range BuildReadings(payload.Data) {
		b.publishState(reading)
	}
}

func (b *Bridge) pollTotals() {
	date := time.Now().Format("2006-01-02")
	url := fmt.Sprintf("%s/api/day/%s/%s", b.cfg.ServerHost, b.cfg.DeviceID, date)

	var payload dailyPayload
	if err := b.fetchJSON(url, &payload); err != nil {
		log.Warnf("%s Totals poll failed: %v", logcolors.LogBridge, err)
		return
	}

	totals := payload.Totals()
	for _, reading := range totals.Readings() {
		b.publishState(reading)
	}
	log.Debugf("%s Totals: pv %.1f kWh, load %.1f kWh, grid %.1f kWh",
		logcolors.LogBridge, totals.PVTotal, totals.LoadTotal, totals.GridTotal)
}

func (b *Bridge) publishState(r Reading) {
	topic := StateTopic(b.cfg.MQTTClientID, r.Measurement, r.Name)
	token := b.mqtt.Publish(topic, 0, true, fmt.Sprintf("%v", r.Value))
	if token.Wait() && token.Error() != nil {
		log.Warnf("%s Publish failed for %s: %v", logcolors.LogBridgeMQTT, topic, token.Error())
	}
}

func (b *Bridge) publishDiscovery() {
	for _, s := range Sensors {
		topic, payload, err := DiscoveryMessage(b.cfg.MQTTClientID, s)
		if err != nil {
			log.Warnf("%s Discovery payload failed for %s: %v", logcolors.LogBridgeMQTT, s.Name, err)
			continue
		}
		token := b.mqtt.Publish(topic, 0, true, payload)
		if token.Wait() && token.Error() != nil {
			log.Warnf("%s Discovery publish failed for %s: %v", logcolors.LogBridgeMQTT, s.Name, token.Error())
		}
	}
	log.Infof("%s Published discovery for %d sensors", logcolors.LogBridgeMQTT, len(Sensors))
}
