package app

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/redis/go-redis/v9"

	"bulkmail/internal/api"
	"bulkmail/internal/smtp"
)

const (
	DriverMongo    = "mongo"
	DriverDynamoDB = "dynamodb"
	DriverMySQL    = "mysql"

	defaultSendInterval = 5 * time.Second
	defaultDatabase     = "test"
	defaultCollection   = "senders"
)

type HttpConfig struct {
	Port           int           `yaml:"port" validate:"required"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type SmtpConfig struct {
	Host             string        `yaml:"host" validate:"required"`
	Port             int           `yaml:"port" validate:"required"`
	HeloName         string        `yaml:"helo_name"`
	ImplicitTls      bool          `yaml:"implicit_tls"`
	AllowInsecureTls bool          `yaml:"allow_insecure_tls"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
}

type DispatchConfig struct {
	// SendInterval is the pause between two envelopes of the same batch.
	// Unset means the default; an explicit 0s disables pacing.
	SendInterval *time.Duration `yaml:"send_interval" validate:"omitempty,gte=0"`
}

type CacheConfig struct {
	Ttl time.Duration `yaml:"ttl"`
}

type CredentialsConfig struct {
	Driver     string      `yaml:"driver" validate:"required,oneof=mongo dynamodb mysql"`
	Dsn        string      `yaml:"dsn" validate:"required_unless=Driver dynamodb"`
	Database   string      `yaml:"database"`
	Collection string      `yaml:"collection"`
	Table      string      `yaml:"table" validate:"required_if=Driver dynamodb"`
	Cache      CacheConfig `yaml:"cache"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Db       int    `yaml:"db"`
}

type LockConfig struct {
	Enabled bool          `yaml:"enabled"`
	Expiry  time.Duration `yaml:"expiry"`
}

type AwsConfig struct {
	BaseEndpoint string `yaml:"base_endpoint"`
	Key          string `yaml:"key"`
	Secret       string `yaml:"secret"`
	Region       string `yaml:"region"`
}

type Config struct {
	Http        HttpConfig        `yaml:"http" validate:"required"`
	Smtp        SmtpConfig        `yaml:"smtp" validate:"required"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Credentials CredentialsConfig `yaml:"credentials" validate:"required"`
	Redis       RedisConfig       `yaml:"redis"`
	Lock        LockConfig        `yaml:"lock"`
	Aws         AwsConfig         `yaml:"aws"`
}

func (c *Config) getApiConfig() api.Config {
	return api.Config{
		Port:            c.Http.Port,
		AllowedOrigins:  c.Http.AllowedOrigins,
		DispatchTimeout: c.Http.RequestTimeout,
	}
}

func (c *Config) getSmtpConfig() smtp.Config {
	return smtp.Config{
		Host:             c.Smtp.Host,
		Port:             c.Smtp.Port,
		HeloName:         c.Smtp.HeloName,
		ImplicitTls:      c.Smtp.ImplicitTls,
		AllowInsecureTls: c.Smtp.AllowInsecureTls,
		DialTimeout:      c.Smtp.DialTimeout,
		CommandTimeout:   c.Smtp.CommandTimeout,
	}
}

func (c *Config) getSendInterval() time.Duration {
	if c.Dispatch.SendInterval == nil {
		return defaultSendInterval
	}
	return *c.Dispatch.SendInterval
}

func (c *Config) getMongoNames() (database, collection string) {
	database, collection = c.Credentials.Database, c.Credentials.Collection
	if database == "" {
		database = defaultDatabase
	}
	if collection == "" {
		collection = defaultCollection
	}
	return database, collection
}

func (c *Config) getRedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.Db,
	}
}

func (c *Config) getAwsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Aws.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Aws.Region))
	}
	if c.Aws.Key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.Aws.Key, c.Aws.Secret, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if c.Aws.BaseEndpoint != "" {
		cfg.BaseEndpoint = aws.String(c.Aws.BaseEndpoint)
	}

	return cfg, nil
}
