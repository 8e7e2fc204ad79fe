// Package mqttclient receives transcripts from an MQTT broker and publishes
// segmentation results back to it.
package mqttclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultTopic is subscribed when no topic filter is configured.
const DefaultTopic = "transcripts/#"

const publishTimeout = 10 * time.Second

// MessageHandler is called for every transcript message received.
type MessageHandler func(topic string, payload []byte)

type Client struct {
	conn        mqtt.Client
	topics      []string
	resultTopic string
	connected   atomic.Bool
	received    atomic.Int64
	published   atomic.Int64
	log         zerolog.Logger
	handler     atomic.Pointer[MessageHandler]
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Topics      string // comma-separated subscription filters
	ResultTopic string // results go to ResultTopic/<job id>
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topics:      parseTopics(opts.Topics),
		resultTopic: strings.TrimRight(opts.ResultTopic, "/"),
		log:         opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetMessageHandler installs h for incoming transcripts. Messages that
// arrive before a handler is set are logged and dropped.
func (c *Client) SetMessageHandler(h MessageHandler) {
	c.handler.Store(&h)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = 1
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.received.Add(1)
	if h := c.handler.Load(); h != nil {
		(*h)(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message dropped, no handler")
}

// Publish sends v as JSON to the result topic for jobID.
func (c *Client) Publish(jobID string, v any) error {
	if !c.IsConnected() {
		return errors.New("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	topic := ResultTopic(c.resultTopic, jobID)
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	c.published.Add(1)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Counts returns the number of messages received and results published.
func (c *Client) Counts() (received, published int64) {
	return c.received.Load(), c.published.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// ResultTopic joins base and jobID. An empty base publishes on the job id alone.
func ResultTopic(base, jobID string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return jobID
	}
	return base + "/" + jobID
}

// NameFromTopic returns the last level of topic, used as the transcript name.
func NameFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return []string{DefaultTopic}
	}
	return topics
}
