package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"bulkmail/internal/credentials"
)

// Client opens authenticated sessions against the configured relay.
type Client struct {
	cfg     Config
	builder *MessageBuilder
}

func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		builder: NewMessageBuilder(),
	}
}

func (c *Client) Open(ctx context.Context, creds credentials.Credentials) (*Session, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, c.setupError(ctx, "dial", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(c.cfg.CommandTimeout))

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, c.setupError(ctx, "greeting", err)
	}

	if err := client.Hello(c.cfg.HeloName); err != nil {
		_ = client.Close()
		return nil, c.setupError(ctx, "hello", err)
	}

	if !c.cfg.ImplicitTls {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(c.tlsConfig()); err != nil {
				_ = client.Close()
				return nil, c.setupError(ctx, "starttls", err)
			}
		}
	}

	auth := smtp.PlainAuth("", creds.LoginIdentity, creds.Secret, c.cfg.Host)
	if err := client.Auth(auth); err != nil {
		_ = client.Close()
		if isAuthRejection(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return nil, c.setupError(ctx, "auth", err)
	}

	_ = conn.SetDeadline(time.Time{})

	return &Session{
		conn:     conn,
		client:   client,
		identity: creds.LoginIdentity,
		builder:  c.builder,
		timeout:  c.cfg.CommandTimeout,
	}, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	if c.cfg.ImplicitTls {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig()}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}

	return dialer.DialContext(ctx, "tcp", addr)
}

func (c *Client) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.AllowInsecureTls,
	}
}

func (c *Client) setupError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s interrupted: %w", ErrRelayConnection, op, ctxErr)
	}
	return connectionError(op, err)
}
