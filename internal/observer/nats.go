// Package observer publishes message-state updates for out-of-process
// renderers. The controller stays the sole mutator; subscribers only see
// immutable snapshots.
package observer

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shelfmetrics/insight-client/internal/conversation"
	"github.com/shelfmetrics/insight-client/pkg/logger"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
	// SubjectPrefix scopes published updates; the message ID is appended.
	SubjectPrefix string
}

// NATSPublisher forwards every message snapshot onto a NATS subject.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *logger.Logger
}

var _ conversation.Observer = (*NATSPublisher)(nil)

// ConnectNATS establishes a connection and returns a publisher.
func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("NATS error", "error", err)
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "insight.messages"
	}

	return &NATSPublisher{
		conn:   nc,
		prefix: prefix,
		log:    log,
	}, nil
}

// OnMessageUpdate publishes one snapshot. Publish failures are logged, not
// fatal; rendering must never break the stream.
func (p *NATSPublisher) OnMessageUpdate(msg conversation.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warnw("failed to encode message update", "message_id", msg.ID, "error", err)
		return
	}
	subject := p.prefix + "." + msg.ID
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warnw("failed to publish message update", "subject", subject, "error", err)
	}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
