package runner

import (
	"context"
	"errors"
	"flag"

	"go.uber.org/zap"
)

const (
	RunModeWorker = iota + 1
	RunModeMigrate
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

// Runner is a process entrypoint selected by run mode.
type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// Config holds the process configuration assembled from command line flags.
// Redis connection parameters are not flags: they come from the environment
// via the redis/config package (REDIS_URL and friends).
type Config struct {
	RunMode int
	Debug   bool

	Dsn string

	BucketPrefix  string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	S3EndpointURL string

	NotifyChannel string
}

// ParseConfig parses the command line into a Config.
func ParseConfig() *Config {
	cfg := Config{}

	var migrate bool

	flag.StringVar(&cfg.Dsn, "dsn", "", "database connection string")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&migrate, "migrate", false, "run database migrations and exit")
	flag.StringVar(&cfg.BucketPrefix, "bucket-prefix", "airlock", "prefix for stage bucket names")
	flag.StringVar(&cfg.AwsAccessKey, "aws-access-key", "", "AWS access key")
	flag.StringVar(&cfg.AwsSecretKey, "aws-secret-key", "", "AWS secret key")
	flag.StringVar(&cfg.AwsRegion, "aws-region", "us-east-1", "AWS region")
	flag.StringVar(&cfg.S3EndpointURL, "s3-endpoint", "", "custom S3 endpoint URL (for S3-compatible storage)")
	flag.StringVar(&cfg.NotifyChannel, "notify-channel", "", "pub/sub channel for status events")

	flag.Parse()

	if migrate {
		cfg.RunMode = RunModeMigrate
	} else {
		cfg.RunMode = RunModeWorker
	}

	return &cfg
}

// Logger builds the process logger. Debug mode selects the human friendly
// development encoder.
func Logger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}

		return logger
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}
