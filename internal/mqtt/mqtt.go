package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"plcdash-server/internal/config"
	"plcdash-server/internal/modules/dashboard/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// Telemetry is the relayed payload. Raw values keep the PLC's tenths scaling.
type Telemetry struct {
	Timestamp    time.Time `json:"timestamp"`
	Humidity     int64     `json:"humidity"`
	Temperature  int64     `json:"temperature"`
	HumidityPct  float64   `json:"humidity_pct"`
	TemperatureC float64   `json:"temperature_c"`
	Fallback     bool      `json:"fallback"`
}

// Publisher relays every acquired reading to a broker topic.
type Publisher struct {
	client    mqtt.Client
	topic     string
	broker    string
	port      int
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:  cfg.MQTTTopic,
		broker: cfg.MQTTBroker,
		port:   cfg.MQTTPort,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "plcdash-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection and respects ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) the token may keep retrying internally.
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// PublishReading sends one reading to the configured topic with QoS 1.
func (p *Publisher) PublishReading(r types.Reading, fallback bool) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := EncodeReading(r, fallback)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", p.topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish reading: %w", token.Error())
	}

	p.logger.Debug("published reading", "topic", p.topic, "fallback", fallback)
	return nil
}

// EncodeReading returns the JSON payload published for r.
func EncodeReading(r types.Reading, fallback bool) ([]byte, error) {
	data, err := json.Marshal(Telemetry{
		Timestamp:    r.Time.UTC(),
		Humidity:     r.Humidity,
		Temperature:  r.Temperature,
		HumidityPct:  r.HumidityPct(),
		TemperatureC: r.TemperatureC(),
		Fallback:     fallback,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reading: %w", err)
	}
	return data, nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (p *Publisher) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	p.stopOnce.Do(func() { close(p.stopCh) })

	// Disconnect without holding p.mu to avoid lock contention/deadlocks.
	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
