package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/configparser"
)

// Flags
var (
	modeFlag = flag.String("mode", "", "application mode")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		LogLevel string `env:"LOG_LEVEL" default:"DEBUG"`

		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Services ServicesConfig
		Auth     Auth
		Hub      HubConfig
		Producer ProducerConfig
		Eta      EtaConfig
		Query    QueryConfig
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"nxtbus_user"`
		Password string `env:"DATABASE_PASSWORD" default:"nxtbus_pass"`
		Database string `env:"DATABASE_DATABASE" default:"nxtbus_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	ServicesConfig struct {
		HubService      string `env:"SERVICES_HUB_SERVICE" default:"3000"`
		VehicleService  string `env:"SERVICES_VEHICLE_SERVICE" default:"3001"`
		ConsumerService string `env:"SERVICES_CONSUMER_SERVICE" default:"3002"`
	}

	Auth struct {
		AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" default:"15m"`
		JWTSecret      string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	// HubConfig tunes the tracking hub's periodic loops.
	HubConfig struct {
		HeartbeatInterval time.Duration `env:"HUB_HEARTBEAT_INTERVAL" default:"5s"`
		LivenessWindow    time.Duration `env:"HUB_LIVENESS_WINDOW" default:"45s"`
		FixRingCapacity   int           `env:"HUB_FIX_RING_CAPACITY" default:"256"`
	}

	// ProducerConfig tunes the vehicle-side pipeline.
	ProducerConfig struct {
		HubWSURL        string        `env:"PRODUCER_HUB_WS_URL" default:"ws://localhost:3000"`
		HubHTTPURL      string        `env:"PRODUCER_HUB_HTTP_URL" default:"http://localhost:3000"`
		Token           string        `env:"PRODUCER_TOKEN"`
		SampleInterval  time.Duration `env:"PRODUCER_SAMPLE_INTERVAL" default:"3s"`
		ResendInterval  time.Duration `env:"PRODUCER_RESEND_INTERVAL" default:"15s"`
		TransmitTimeout time.Duration `env:"PRODUCER_TRANSMIT_TIMEOUT" default:"10s"`
		QueueCapacity   int           `env:"PRODUCER_QUEUE_CAPACITY" default:"50"`

		// identity of this vehicle and the trip it starts on the hub
		VehicleID string `env:"PRODUCER_VEHICLE_ID"`
		RouteID   string `env:"PRODUCER_ROUTE_ID"`
		OwnerID   string `env:"PRODUCER_OWNER_ID"`

		// optional device gateway; when unset or unreachable the producer
		// falls back to the route simulator
		SensorFeedURL string `env:"PRODUCER_SENSOR_FEED_URL"`
	}

	// EtaConfig tunes the estimation pipeline.
	EtaConfig struct {
		MinSpeedKmh       float64 `env:"ETA_MIN_SPEED_KMH" default:"5"`
		MaxSpeedKmh       float64 `env:"ETA_MAX_SPEED_KMH" default:"35"`
		DefaultSpeedKmh   float64 `env:"ETA_DEFAULT_SPEED_KMH" default:"20"`
		MinMotionKmh      float64 `env:"ETA_MIN_MOTION_KMH" default:"5"`
		LiveWeight        float64 `env:"ETA_LIVE_WEIGHT" default:"0.7"`
		AtStopRadiusKm    float64 `env:"ETA_AT_STOP_RADIUS_KM" default:"0.1"`
		PassedToleranceKm float64 `env:"ETA_PASSED_TOLERANCE_KM" default:"0.15"`
	}

	// QueryConfig tunes the consumer-side polling hook.
	QueryConfig struct {
		HubHTTPURL     string        `env:"QUERY_HUB_HTTP_URL" default:"http://localhost:3000"`
		Token          string        `env:"QUERY_TOKEN"`
		Interval       time.Duration `env:"QUERY_INTERVAL" default:"15s"`
		HistorySize    int           `env:"QUERY_HISTORY_SIZE" default:"5"`
		RequestTimeout time.Duration `env:"QUERY_REQUEST_TIMEOUT" default:"10s"`

		// the trip this consumer watches and the stop it estimates for
		TripID  string `env:"QUERY_TRIP_ID"`
		RouteID string `env:"QUERY_ROUTE_ID"`
		StopID  string `env:"QUERY_STOP_ID"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	return nil
}
