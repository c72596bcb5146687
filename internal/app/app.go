package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bulkmail/internal/api"
	"bulkmail/internal/credentials"
	"bulkmail/internal/dispatch"
	"bulkmail/internal/locker"
	"bulkmail/internal/metrics"
	"bulkmail/internal/service"
	"bulkmail/internal/smtp"
)

const closeTimeout = 5 * time.Second

type server interface {
	ListenAndServe(ctx context.Context) error
}

type App struct {
	server  server
	sender  *service.BulkSender
	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

func New(ctx context.Context, cfg *Config) (*App, error) {
	a := &App{logger: slog.With("component", "app")}

	resolver, err := a.newResolver(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	m := metrics.NewMetrics()
	opts := []service.Option{service.WithMetrics(m)}

	if redisOpts := cfg.getRedisOptions(); redisOpts != nil {
		redisClient := redis.NewClient(redisOpts)
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })

		if cfg.Credentials.Cache.Ttl > 0 {
			resolver = credentials.NewCachedResolver(resolver, redisClient, cfg.Credentials.Cache.Ttl)
		}
		if cfg.Lock.Enabled {
			opts = append(opts, service.WithLocker(locker.NewRedisLocker(redisClient, cfg.Lock.Expiry)))
		}
	} else if cfg.Credentials.Cache.Ttl > 0 || cfg.Lock.Enabled {
		a.close()
		return nil, errors.New("credentials cache and sender lock require redis.addr")
	}

	client := smtp.New(cfg.getSmtpConfig())
	relay := service.RelayFunc(func(ctx context.Context, creds credentials.Credentials) (service.Session, error) {
		session, err := client.Open(ctx, creds)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	engine := dispatch.NewEngine(dispatch.NewFixedInterval(cfg.getSendInterval()))

	a.sender = service.NewBulkSender(resolver, relay, engine, opts...)
	a.server = api.NewServer(cfg.getApiConfig(), a.sender, m.Handler())

	a.logger.Info(fmt.Sprintf("credentials from %s, relay %s:%d, send interval %s",
		cfg.Credentials.Driver, cfg.Smtp.Host, cfg.Smtp.Port, cfg.getSendInterval()))

	return a, nil
}

func (a *App) newResolver(ctx context.Context, cfg *Config) (credentials.Resolver, error) {
	switch cfg.Credentials.Driver {
	case DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Credentials.Dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		database, collection := cfg.getMongoNames()
		return credentials.NewMongoStore(client.Database(database), collection), nil

	case DriverMySQL:
		db, err := sql.Open("mysql", cfg.Credentials.Dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })

		return credentials.NewMySQLStore(db), nil

	case DriverDynamoDB:
		awsConfig, err := cfg.getAwsConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}

		return credentials.NewDynamoStore(dynamodb.NewFromConfig(awsConfig), cfg.Credentials.Table), nil
	}

	return nil, fmt.Errorf("unknown credentials driver %q", cfg.Credentials.Driver)
}

// Run serves until ctx is done, then releases every backing connection.
func (a *App) Run(ctx context.Context) error {
	err := a.server.ListenAndServe(ctx)
	return errors.Join(err, a.close())
}

func (a *App) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
