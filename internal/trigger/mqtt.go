package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
)

const (
	// pullQoS is the subscription QoS for firmware-pull messages.
	pullQoS byte = 1

	connectWait          = 10 * time.Second
	connectRetryInterval = 30 * time.Second
	disconnectQuiesceMS  = 250
	defaultKeepAlive     = 60 * time.Second
)

var (
	// errOtherDevice is returned for a pull message addressed to another device.
	errOtherDevice = errors.New("pull message is addressed to another device")
	// errBadMessageID is returned when the message id is not a UUID.
	errBadMessageID = errors.New("pull message id is not a uuid")
)

// PullHeaders are the flags the platform attaches to a firmware pull.
type PullHeaders struct {
	Force  bool `json:"force"`
	Latest bool `json:"latest"`
}

// PullMessage is the firmware-pull payload published by the device platform.
type PullMessage struct {
	Headers        PullHeaders `json:"headers"`
	DeviceID       string      `json:"deviceId"`
	Timestamp      int64       `json:"timestamp"`
	MessageID      string      `json:"messageId"`
	RequestVersion string      `json:"requestVersion"`
}

// PullTopic returns the topic firmware pulls for identity are published on.
func PullTopic(prefix string, identity firmware.DeviceIdentity) string {
	return fmt.Sprintf("%s/%s/firmware/pull", strings.TrimSuffix(prefix, "/"), identity.String())
}

// ParsePullMessage decodes payload and checks it targets identity.
// An empty device id is accepted since the topic already names the device.
func ParsePullMessage(payload []byte, identity firmware.DeviceIdentity) (*PullMessage, error) {
	var message PullMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return nil, fmt.Errorf("decode pull message: %w", err)
	}

	if message.DeviceID != "" && !strings.EqualFold(message.DeviceID, identity.String()) {
		return nil, fmt.Errorf("%s: %w", message.DeviceID, errOtherDevice)
	}

	if message.MessageID != "" {
		if _, err := uuid.FromString(message.MessageID); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadMessageID, err)
		}
	}

	return &message, nil
}

// Subscriber listens for firmware-pull messages for one device.
type Subscriber struct {
	// client is the MQTT connection.
	client paho.Client
	// topic is the device's firmware-pull topic.
	topic string
	// identity filters messages meant for other devices.
	identity firmware.DeviceIdentity
	// events receives a check request per accepted message.
	events chan<- Event
}

// NewSubscriber prepares an MQTT client for cfg. Nothing connects until Start.
func NewSubscriber(cfg config.MQTTConfig, identity firmware.DeviceIdentity, events chan<- Event) *Subscriber {
	s := &Subscriber{
		topic:    PullTopic(cfg.TopicPrefix, identity),
		identity: identity,
		events:   events,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ota-client-" + identity.String()
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	opts := paho.NewClientOptions().
		SetClientID(clientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetKeepAlive(keepAlive).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password)

	for _, broker := range cfg.Brokers {
		opts.AddBroker(broker)
	}

	// Subscriptions are renewed on every (re)connect.
	opts.OnConnect = s.subscribe
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.WarnKV(context.Background(), "MQTT connection lost, waiting for reconnect", "error", err)
	}

	s.client = paho.NewClient(opts)

	return s
}

// Topic is the subscribed topic.
func (s *Subscriber) Topic() string {
	return s.topic
}

// Start connects in the background and disconnects when ctx is done.
// A broker that is down at start is retried; it does not fail the daemon.
func (s *Subscriber) Start(ctx context.Context) {
	token := s.client.Connect()
	if token.WaitTimeout(connectWait) && token.Error() != nil {
		logger.WarnKV(ctx, "MQTT first connection failed, retrying in background", "error", token.Error())
	}

	go func() {
		<-ctx.Done()
		s.client.Disconnect(disconnectQuiesceMS)
	}()
}

func (s *Subscriber) subscribe(client paho.Client) {
	ctx := context.Background()

	token := client.Subscribe(s.topic, pullQoS, s.handle)
	if token.Wait() && token.Error() != nil {
		logger.ErrorKV(ctx, "MQTT subscription failed", "topic", s.topic, "error", token.Error())
		return
	}

	logger.InfoKV(ctx, "Subscribed to firmware pulls", "topic", s.topic)
}

// handle turns an accepted pull message into a check event.
func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	ctx := context.Background()

	message, err := ParsePullMessage(msg.Payload(), s.identity)
	if err != nil {
		logger.WarnKV(ctx, "Ignoring firmware pull", "topic", msg.Topic(), "error", err)
		return
	}

	logger.InfoKV(ctx, "Update check requested over MQTT",
		"message_id", message.MessageID,
		"request_version", message.RequestVersion,
		"force", message.Headers.Force)

	notify(s.events, Event{Source: SourceMQTT, MessageID: message.MessageID})
}
