package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jmorita/denkiwatch/internal/config"
	"github.com/jmorita/denkiwatch/pkg/models"
)

// Publisher pushes stored usage records to an MQTT broker so downstream
// consumers (dashboards, home automation) can react to new data
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured MQTT broker
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	topicPrefix := cfg.TopicPrefix
	if topicPrefix == "" {
		topicPrefix = "denkiwatch"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("denkiwatch")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
	}, nil
}

// usagePayload is the wire shape published per record
type usagePayload struct {
	UsageDate           string  `json:"usage_date"`
	KwhUsed             float64 `json:"kwh_used"`
	ChargeYen           int     `json:"charge_yen"`
	CumulativeKwh       float64 `json:"cumulative_kwh"`
	CumulativeChargeYen int     `json:"cumulative_charge_yen"`
	BillingStatus       string  `json:"billing_status"`
}

// Publish sends one usage record, retained, to <prefix>/usage/<date>
func (p *Publisher) Publish(rec *models.UsageRecord) error {
	payload, err := json.Marshal(usagePayload{
		UsageDate:           rec.UsageDate,
		KwhUsed:             rec.KwhUsed,
		ChargeYen:           rec.ChargeYen,
		CumulativeKwh:       rec.CumulativeKwh,
		CumulativeChargeYen: rec.CumulativeChargeYen,
		BillingStatus:       rec.BillingStatus,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := fmt.Sprintf("%s/usage/%s", p.topicPrefix, rec.UsageDate)
	if token := p.client.Publish(topic, 1, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
