package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"device-agent/config"
	"device-agent/models"
	"device-agent/utils"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one raw inbound envelope waiting to be drained by the
// agent loop.
type Message struct {
	Topic   string
	Payload []byte
}

// State is a snapshot of the session bookkeeping.
type State struct {
	Connected         bool
	LastLivenessCheck time.Time
	RetryCount        int
}

// Session owns the single authenticated connection to the broker.
// There is at most one Session per agent; it is created at startup and
// re-established in place after every connection loss.
type Session struct {
	config *config.Config
	logger *utils.Logger
	client mqtt.Client

	inbound chan Message

	mu                sync.RWMutex
	lastLivenessCheck time.Time
	retryCount        int
}

// NewSession creates a disconnected session. Establish must be called
// before any publish.
func NewSession(cfg *config.Config, logger *utils.Logger) *Session {
	return &Session{
		config:  cfg,
		logger:  logger,
		inbound: make(chan Message, 16),
	}
}

// Establish blocks until a secure, authenticated connection is made,
// retrying indefinitely at a fixed delay. On success it subscribes to
// the command and OTA topics. Each attempt uses a freshly randomized
// client ID so the broker does not collide the new session with a
// stale one left by an abrupt disconnect.
func (s *Session) Establish(ctx context.Context) error {
	retry := backoff.NewConstantBackOff(s.config.ConnectRetryDelay)

	operation := func() error {
		if err := s.connectOnce(); err != nil {
			s.mu.Lock()
			s.retryCount++
			s.mu.Unlock()
			s.logger.Errorf("Failed to connect to MQTT broker: %v", err)
			return err
		}
		if err := s.subscribeInbound(); err != nil {
			// A session without its subscriptions is not established.
			s.currentClient().Disconnect(250)
			s.mu.Lock()
			s.retryCount++
			s.mu.Unlock()
			s.logger.Errorf("Failed to subscribe after connect: %v", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(retry, ctx)); err != nil {
		return fmt.Errorf("session establishment aborted: %w", err)
	}

	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()

	s.logger.Infof("Connected to MQTT broker %s", s.config.BrokerURL)
	return nil
}

func (s *Session) connectOnce() error {
	tlsConfig, err := newTLSConfig(s.config.CACertFile)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.config.BrokerURL).
		SetClientID(utils.GenerateClientID(s.config.DeviceID)).
		SetUsername(s.config.BrokerUsername).
		SetPassword(s.config.BrokerPassword).
		SetTLSConfig(tlsConfig).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetAutoReconnect(false).
		SetCleanSession(true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		s.logger.Warnf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker connect failed: %w", token.Error())
	}
	s.setClient(client)
	return nil
}

// setClient and currentClient guard the client handle: the agent loop
// replaces it on every reconnect while the diagnostics HTTP goroutine
// reads it through State.
func (s *Session) setClient(client mqtt.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

func (s *Session) currentClient() mqtt.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) subscribeInbound() error {
	client := s.currentClient()
	topics := []string{
		models.Topic(models.TopicCommands, s.config.DeviceID),
		models.Topic(models.TopicOTA, s.config.DeviceID),
	}
	for _, topic := range topics {
		if token := client.Subscribe(topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
		s.logger.Infof("Subscribed to topic: %s", topic)
	}
	return nil
}

// onMessage runs on a paho goroutine. It hands the raw envelope to the
// agent loop through a bounded buffer; when the buffer is full the
// message is dropped rather than growing memory.
func (s *Session) onMessage(client mqtt.Client, msg mqtt.Message) {
	select {
	case s.inbound <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
	default:
		s.logger.Warnf("Inbound buffer full, dropping message on topic %s", msg.Topic())
	}
}

// Poll returns one pending inbound message without blocking.
func (s *Session) Poll() (Message, bool) {
	select {
	case msg := <-s.inbound:
		return msg, true
	default:
		return Message{}, false
	}
}

// IsAlive performs a non-blocking liveness check.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	s.lastLivenessCheck = time.Now()
	s.mu.Unlock()
	client := s.currentClient()
	return client != nil && client.IsConnectionOpen()
}

// Publish sends a payload to a topic. Failure is non-fatal: telemetry
// and heartbeat loss is tolerated, so callers may ignore the error
// after it has been logged here.
func (s *Session) Publish(topic string, payload []byte) error {
	client := s.currentClient()
	if client == nil || !client.IsConnectionOpen() {
		err := fmt.Errorf("MQTT client is not connected")
		s.logger.Errorf("Publish to %s failed: %v", topic, err)
		return err
	}

	token := client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		s.logger.Errorf("Publish to %s failed: %v", topic, token.Error())
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	s.logger.Debugf("Published %d bytes to %s", len(payload), topic)
	return nil
}

// State returns a snapshot of the session bookkeeping.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Connected:         s.client != nil && s.client.IsConnectionOpen(),
		LastLivenessCheck: s.lastLivenessCheck,
		RetryCount:        s.retryCount,
	}
}

// Disconnect gracefully closes the session.
func (s *Session) Disconnect() {
	client := s.currentClient()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		s.logger.Info("MQTT session disconnected")
	}
}

// newTLSConfig builds a server-authenticating TLS configuration from
// the provisioned CA certificate. The session never accepts
// unauthenticated servers.
func newTLSConfig(caCertFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", caCertFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no usable certificates in %s", caCertFile)
	}
	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
