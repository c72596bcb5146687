// Package fakerelay runs an in-process SMTP relay for tests.
package fakerelay

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

var errDropped = errors.New("connection dropped")

type Message struct {
	From string
	To   []string
	Data []byte
}

type Option func(*Relay)

func WithUser(login, password string) Option {
	return func(r *Relay) {
		r.users[login] = password
	}
}

// RejectRecipient makes RCPT TO for addr fail with the given reply.
func RejectRecipient(addr string, code int, message string) Option {
	return func(r *Relay) {
		r.rejects[addr] = &smtp.SMTPError{Code: code, Message: message}
	}
}

// DropOnRecipient closes the connection when RCPT TO names addr.
func DropOnRecipient(addr string) Option {
	return func(r *Relay) {
		r.drops[addr] = true
	}
}

// StallOnRecipient blocks RCPT TO for addr until the relay is stopped.
func StallOnRecipient(addr string) Option {
	return func(r *Relay) {
		r.stalls[addr] = true
	}
}

type Relay struct {
	server   *smtp.Server
	listener net.Listener
	done     chan struct{}

	users   map[string]string
	rejects map[string]*smtp.SMTPError
	drops   map[string]bool
	stalls  map[string]bool

	mu       sync.Mutex
	messages []Message
	logins   int
	logouts  int
}

// Start listens on a random loopback port and stops the relay when the test ends.
func Start(t testing.TB, opts ...Option) *Relay {
	t.Helper()

	r := &Relay{
		done:    make(chan struct{}),
		users:   map[string]string{},
		rejects: map[string]*smtp.SMTPError{},
		drops:   map[string]bool{},
		stalls:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	r.listener = ln

	r.server = smtp.NewServer(r)
	r.server.Domain = "localhost"
	r.server.AllowInsecureAuth = true
	r.server.ReadTimeout = 10 * time.Second
	r.server.WriteTimeout = 10 * time.Second

	go func() {
		_ = r.server.Serve(ln)
	}()

	t.Cleanup(func() { _ = r.server.Close() })
	t.Cleanup(func() { close(r.done) })

	return r
}

func (r *Relay) Host() string {
	return "127.0.0.1"
}

func (r *Relay) Port() int {
	return r.listener.Addr().(*net.TCPAddr).Port
}

func (r *Relay) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *Relay) Logins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logins
}

// Logouts counts finished connections, whether they ended with QUIT or not.
func (r *Relay) Logouts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logouts
}

func (r *Relay) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{relay: r, conn: c}, nil
}

type session struct {
	relay *Relay
	conn  *smtp.Conn
	from  string
	to    []string
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, &smtp.SMTPError{Code: 504, Message: "unsupported authentication mechanism"}
	}

	return sasl.NewPlainServer(func(_, username, password string) error {
		expected, ok := s.relay.users[username]
		if !ok || expected != password {
			return smtp.ErrAuthFailed
		}

		s.relay.mu.Lock()
		s.relay.logins++
		s.relay.mu.Unlock()
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.relay.drops[to] {
		_ = s.conn.Conn().Close()
		return errDropped
	}
	if s.relay.stalls[to] {
		<-s.relay.done
		return errDropped
	}
	if rejection, ok := s.relay.rejects[to]; ok {
		return rejection
	}

	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.relay.mu.Lock()
	s.relay.messages = append(s.relay.messages, Message{From: s.from, To: s.to, Data: data})
	s.relay.mu.Unlock()
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	s.relay.mu.Lock()
	s.relay.logouts++
	s.relay.mu.Unlock()
	return nil
}
