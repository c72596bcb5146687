package credentials

import (
	"context"
	"errors"
	"log/slog"
)

var ErrSenderNotFound = errors.New("sender not found")

// Credentials authenticate one sender against the relay. LoginIdentity doubles as the From address.
type Credentials struct {
	LoginIdentity string
	Secret        string
}

func (c Credentials) String() string {
	return c.LoginIdentity + ":[REDACTED]"
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("login", c.LoginIdentity),
		slog.String("secret", "[REDACTED]"),
	)
}

type Resolver interface {
	Resolve(ctx context.Context, senderId string) (Credentials, error)
}

// Static serves inline credentials supplied with a request.
type Static struct {
	creds Credentials
}

func NewStatic(creds Credentials) *Static {
	return &Static{creds: creds}
}

func (s *Static) Resolve(_ context.Context, senderId string) (Credentials, error) {
	if senderId != "" && senderId != s.creds.LoginIdentity {
		return Credentials{}, ErrSenderNotFound
	}
	return s.creds, nil
}
