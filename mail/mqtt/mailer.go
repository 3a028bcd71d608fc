package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultTopicPrefix    = "levelauth/mail"
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesceMS   = 250
	maxQoS                = 2
)

// Config selects the broker and topic. Broker is a URL such as tcp://127.0.0.1:1883
// or ssl://mail-bus:8883.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "levelauth-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
}

// publisher is the part of pahomqtt.Client the mailer uses.
type publisher interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Job is the payload published for each message.
type Job struct {
	ID      string             `json:"id"`
	Kind    levelAuth.MailKind `json:"kind"`
	To      string             `json:"to"`
	Name    string             `json:"name,omitempty"`
	Token   string             `json:"token"`
	Link    string             `json:"link,omitempty"`
	Expires time.Time          `json:"expires"`
	Queued  time.Time          `json:"queued_at"`
}

// Mailer implements levelAuth.Mailer. It is safe for concurrent use.
type Mailer struct {
	client publisher
	cfg    Config
}

var _ levelAuth.Mailer = (*Mailer)(nil)

// Dial connects to cfg.Broker and returns a Mailer. The paho client reconnects
// automatically after the first successful connection.
func Dial(cfg Config) (*Mailer, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	cfg.applyDefaults()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Mailer{client: client, cfg: cfg}, nil
}

func newMailer(client publisher, cfg Config) *Mailer {
	cfg.applyDefaults()
	return &Mailer{client: client, cfg: cfg}
}

// Topic returns the topic a message of kind is published to.
func (m *Mailer) Topic(kind levelAuth.MailKind) string {
	return m.cfg.TopicPrefix + "/" + string(kind)
}

// Send publishes msg and waits for the broker acknowledgment, the publish timeout,
// or ctx, whichever comes first.
func (m *Mailer) Send(ctx context.Context, msg levelAuth.MailMessage) error {
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(Job{
		ID:      uuid.NewString(),
		Kind:    msg.Kind,
		To:      msg.To,
		Name:    msg.Name,
		Token:   msg.Token,
		Link:    msg.Link,
		Expires: msg.Expires.UTC(),
		Queued:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding mail job: %w", err)
	}

	token := m.client.Publish(m.Topic(msg.Kind), m.cfg.QoS, false, payload)

	timer := time.NewTimer(m.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, m.cfg.PublishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects from the broker after letting in-flight publishes settle.
func (m *Mailer) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(disconnectQuiesceMS)
}
