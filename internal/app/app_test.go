//go:build unit

package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"
)

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, &AppTestSuite{})
}

type AppTestSuite struct {
	suite.Suite
}

func newConfig() *Config {
	interval := time.Second
	return &Config{
		Http: HttpConfig{Port: 0},
		Smtp: SmtpConfig{Host: "dummy-host", Port: 587},
		Dispatch: DispatchConfig{
			SendInterval: &interval,
		},
		Credentials: CredentialsConfig{
			Driver: DriverMySQL,
			Dsn:    "user:password@tcp(127.0.0.1:3306)/bulkmail",
		},
	}
}

func (suite *AppTestSuite) TestAppInstanceWithMySQL() {
	app, err := New(context.TODO(), newConfig())
	suite.Require().NoError(err)

	suite.Assert().NotNil(app.sender)
	suite.Assert().NotNil(app.server)
	suite.Assert().Len(app.closers, 1)
	suite.Assert().NoError(app.close())
}

func (suite *AppTestSuite) TestAppInstanceWithDynamoDB() {
	cfg := newConfig()
	cfg.Credentials = CredentialsConfig{Driver: DriverDynamoDB, Table: "Senders"}
	cfg.Aws = AwsConfig{
		BaseEndpoint: "http://dummy-endpoint:8000",
		Key:          "dummy-key",
		Secret:       "dummy-secret",
		Region:       "dummy-region",
	}

	app, err := New(context.TODO(), cfg)
	suite.Require().NoError(err)
	suite.Assert().NotNil(app.sender)
	suite.Assert().Empty(app.closers)
}

func (suite *AppTestSuite) TestAppInstanceWithRedisCacheAndLock() {
	mr := miniredis.RunT(suite.T())

	cfg := newConfig()
	cfg.Redis = RedisConfig{Addr: mr.Addr()}
	cfg.Credentials.Cache.Ttl = time.Minute
	cfg.Lock = LockConfig{Enabled: true}

	app, err := New(context.TODO(), cfg)
	suite.Require().NoError(err)

	suite.Assert().Len(app.closers, 2)
	suite.Assert().NoError(app.close())
}

func (suite *AppTestSuite) TestLockWithoutRedisFails() {
	cfg := newConfig()
	cfg.Lock = LockConfig{Enabled: true}

	app, err := New(context.TODO(), cfg)
	suite.Assert().Nil(app)
	suite.Assert().EqualError(err, "credentials cache and sender lock require redis.addr")
}

func (suite *AppTestSuite) TestUnknownDriverFails() {
	cfg := newConfig()
	cfg.Credentials.Driver = "postgres"

	_, err := New(context.TODO(), cfg)
	suite.Assert().EqualError(err, `unknown credentials driver "postgres"`)
}

func (suite *AppTestSuite) TestSendIntervalDefault() {
	cfg := newConfig()
	suite.Assert().Equal(time.Second, cfg.getSendInterval())

	cfg.Dispatch.SendInterval = nil
	suite.Assert().Equal(5*time.Second, cfg.getSendInterval())

	zero := time.Duration(0)
	cfg.Dispatch.SendInterval = &zero
	suite.Assert().Equal(time.Duration(0), cfg.getSendInterval())
}

type serverMock struct {
	err   error
	calls int
}

func (s *serverMock) ListenAndServe(ctx context.Context) error {
	s.calls++
	<-ctx.Done()
	return s.err
}

func (suite *AppTestSuite) TestRunClosesResourcesOnShutdown() {
	closed := 0
	srv := &serverMock{}
	app := &App{
		server: srv,
		closers: []func(context.Context) error{
			func(context.Context) error { closed++; return nil },
			func(context.Context) error { closed++; return errors.New("already closed") },
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := app.Run(ctx)

	suite.Assert().EqualError(err, "already closed")
	suite.Assert().Equal(1, srv.calls)
	suite.Assert().Equal(2, closed)
	suite.Assert().Empty(app.closers)
}
