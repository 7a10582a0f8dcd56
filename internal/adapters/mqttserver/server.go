package mqttserver

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures the module-side MQTT connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	Timeout   time.Duration
	Logger    *zap.Logger
	Debug     bool

	// WillTopic and WillPayload, when set, are published retained by the
	// broker if this client drops without disconnecting.
	WillTopic   string
	WillPayload []byte
}

// ErrTimeout is returned when the broker does not acknowledge a request
// within the client timeout.
var ErrTimeout = errors.New("mqtt request timed out")

// Client wraps an MQTT connection shared by the daemon's modules.
type Client struct {
	client  paho.Client
	log     *zap.Logger
	debug   bool
	timeout time.Duration
}

// NewClient connects to the broker.
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	clientOpts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Info("mqtt reconnecting", zap.String("broker", opts.BrokerURL))
	})
	if opts.WillTopic != "" {
		clientOpts.SetBinaryWill(opts.WillTopic, opts.WillPayload, 1, true)
	}

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := TLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &Client{client: client, log: log, debug: opts.Debug, timeout: opts.Timeout}, nil
}

// Publish publishes a message and waits for the broker, at most the
// client timeout.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if c.debug {
		c.log.Debug("mqtt publish", zap.String("topic", topic), zap.Bool("retained", retained), zap.String("payload", truncatePayload(payload)))
	}
	return c.wait("publish", topic, c.client.Publish(topic, qos, retained, payload))
}

// Subscribe subscribes to a topic.
func (c *Client) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	if c.debug {
		c.log.Debug("mqtt subscribe", zap.String("topic", topic))
		inner := handler
		handler = func(client paho.Client, msg paho.Message) {
			c.log.Debug("mqtt message", zap.String("topic", msg.Topic()), zap.String("payload", truncatePayload(msg.Payload())))
			inner(client, msg)
		}
	}
	return c.wait("subscribe", topic, c.client.Subscribe(topic, qos, handler))
}

// Unsubscribe unsubscribes from a topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.wait("unsubscribe", topic, c.client.Unsubscribe(topic))
}

// wait bounds a token by the client timeout. While paho is reconnecting a
// token may never complete.
func (c *Client) wait(op, topic string, token paho.Token) error {
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%s %s: %w after %s", op, topic, ErrTimeout, c.timeout)
	}
	return token.Error()
}

// Close disconnects, allowing quiesce ms for in-flight work.
func (c *Client) Close(quiesce uint) {
	c.client.Disconnect(quiesce)
}

func truncatePayload(payload []byte) string {
	const limit = 1024
	if len(payload) <= limit {
		return string(payload)
	}
	return string(payload[:limit]) + "..."
}
