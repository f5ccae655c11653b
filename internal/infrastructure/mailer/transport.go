// Package mailer delivers contact notifications over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/sync/singleflight"

	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

// ErrNotConfigured is returned when no SMTP host is set
var ErrNotConfigured = errors.New("smtp transport is not configured")

// Sender is the transport used by Notifier
type Sender interface {
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg *mail.Msg) error
}

type pooledConn struct {
	client *mail.Client
	open   bool
	sent   int
}

// SMTPTransport keeps a fixed pool of SMTP sessions. A session is dialed
// lazily, reused for up to MaxMessages sends and then closed.
type SMTPTransport struct {
	cfg    config.SMTPConfig
	logger *logger.Logger
	pool   chan *pooledConn
	group  singleflight.Group
}

// NewSMTPTransport builds the pool without dialing
func NewSMTPTransport(cfg config.SMTPConfig, log *logger.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	size := cfg.MaxConnections
	if size <= 0 {
		size = 1
	}

	t := &SMTPTransport{
		cfg:    cfg,
		logger: log.WithComponent("mailer"),
		pool:   make(chan *pooledConn, size),
	}
	for i := 0; i < size; i++ {
		client, err := t.newClient()
		if err != nil {
			return nil, err
		}
		t.pool <- &pooledConn{client: client}
	}
	return t, nil
}

func (t *SMTPTransport) newClient() (*mail.Client, error) {
	timeout := t.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: t.cfg.Host,
		}),
	}
	if t.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if t.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.User),
			mail.WithPassword(t.cfg.Password),
		)
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

// Verify dials the server, completes the TLS and auth handshake and hangs
// up. Concurrent callers share one attempt.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	_, err, _ := t.group.Do("verify", func() (interface{}, error) {
		client, err := t.newClient()
		if err != nil {
			return nil, err
		}
		if err := client.DialWithContext(ctx); err != nil {
			return nil, fmt.Errorf("smtp verify failed: %w", err)
		}
		return nil, client.Close()
	})
	return err
}

// Send delivers msg on a pooled session. A reused session that fails is
// redialed once before the error is returned.
func (t *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	var conn *pooledConn
	select {
	case conn = <-t.pool:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { t.pool <- conn }()

	reused := conn.open
	if err := t.send(ctx, conn, msg); err != nil {
		if !reused {
			return err
		}
		t.logger.Debugw("Pooled SMTP session failed, redialing", "error", err)
		if err := t.send(ctx, conn, msg); err != nil {
			return err
		}
	}

	conn.sent++
	if t.cfg.MaxMessages > 0 && conn.sent >= t.cfg.MaxMessages {
		t.hangUp(conn)
	}
	return nil
}

func (t *SMTPTransport) send(ctx context.Context, conn *pooledConn, msg *mail.Msg) error {
	if !conn.open {
		if err := conn.client.DialWithContext(ctx); err != nil {
			return fmt.Errorf("smtp dial failed: %w", err)
		}
		conn.open = true
		conn.sent = 0
	}
	if err := conn.client.Send(msg); err != nil {
		t.hangUp(conn)
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (t *SMTPTransport) hangUp(conn *pooledConn) {
	if conn.open {
		_ = conn.client.Close()
	}
	conn.open = false
	conn.sent = 0
}

// Close hangs up every idle session
func (t *SMTPTransport) Close() error {
	for i := 0; i < cap(t.pool); i++ {
		select {
		case conn := <-t.pool:
			t.hangUp(conn)
			t.pool <- conn
		default:
			return nil
		}
	}
	return nil
}

// Unconfigured is the Sender used when no SMTP host is set. Every call fails
// with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Verify(context.Context) error { return ErrNotConfigured }

func (Unconfigured) Send(context.Context, *mail.Msg) error { return ErrNotConfigured }
