package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/configparser"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

// Errors
var (
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		App      AppConfig
		Device   DeviceConfig
		RTK      RTKConfig
		GPS      GPSConfig
		IPLookup IPLookupConfig
		MQTT     MQTTConfig
		Heading  HeadingConfig
		Surface  SurfaceConfig
		Track    TrackConfig
		RabbitMQ RabbitMQConfig
	}

	AppConfig struct {
		Name     string `env:"APP_NAME" default:"geoengine"`
		Port     string `env:"APP_PORT" default:"3010" validate:"required,numeric"`
		LogLevel string `env:"APP_LOG_LEVEL" default:"INFO"`
	}

	// DeviceConfig describes the paired receiver and the host's initial view of it.
	DeviceConfig struct {
		IMEI              string `env:"DEVICE_IMEI"`
		InitialLinkState  string `env:"DEVICE_INITIAL_LINK_STATE" default:"UNLINKED" validate:"oneof=UNLINKED ONLINE OFFLINE"`
		InitialPermission bool   `env:"DEVICE_INITIAL_PERMISSION" default:"true"`
	}

	RTKConfig struct {
		Enabled           bool          `env:"RTK_ENABLED" default:"false"`
		URL               string        `env:"RTK_URL" validate:"required_if=Enabled true,omitempty,url"`
		Token             string        `env:"RTK_TOKEN"`
		HeartbeatInterval time.Duration `env:"RTK_HEARTBEAT_INTERVAL" default:"10s" validate:"gt=0"`
		ReconnectDelay    time.Duration `env:"RTK_RECONNECT_DELAY" default:"3s" validate:"gt=0"`
		MaxAttempts       int           `env:"RTK_MAX_ATTEMPTS" default:"5" validate:"gte=1"`
		HandshakeTimeout  time.Duration `env:"RTK_HANDSHAKE_TIMEOUT" default:"10s"`
	}

	GPSConfig struct {
		Enabled  bool   `env:"GPS_ENABLED" default:"false"`
		Port     string `env:"GPS_PORT" default:"/dev/ttyUSB0" validate:"required_if=Enabled true"`
		BaudRate uint   `env:"GPS_BAUD_RATE" default:"9600" validate:"gt=0"`
	}

	IPLookupConfig struct {
		URL     string        `env:"IPLOOKUP_URL" default:"http://ip-api.com/json/" validate:"required,url"`
		Timeout time.Duration `env:"IPLOOKUP_TIMEOUT" default:"5s" validate:"gt=0"`
	}

	MQTTConfig struct {
		Enabled  bool   `env:"MQTT_ENABLED" default:"false"`
		Broker   string `env:"MQTT_BROKER" default:"tcp://localhost:1883" validate:"required_if=Enabled true"`
		ClientID string `env:"MQTT_CLIENT_ID" default:"geoengine"`
		Username string `env:"MQTT_USERNAME"`
		Password string `env:"MQTT_PASSWORD"`
		Topic    string `env:"MQTT_TOPIC" default:"device/imu" validate:"required_if=Enabled true"`
		QoS      uint8  `env:"MQTT_QOS" default:"0" validate:"lte=2"`

		RetryInterval time.Duration `env:"MQTT_RETRY_INTERVAL" default:"5s" validate:"gte=0"`
	}

	HeadingConfig struct {
		Throttle          time.Duration `env:"HEADING_THROTTLE" default:"100ms" validate:"gt=0"`
		MinCrossNorm      float64       `env:"HEADING_MIN_CROSS_NORM" default:"0.001" validate:"gte=0"`
		CalibrationOffset float64       `env:"HEADING_CALIBRATION_OFFSET" default:"0"`
	}

	SurfaceConfig struct {
		QueueSize     int    `env:"SURFACE_QUEUE_SIZE" default:"256" validate:"gt=0"`
		OffsetEnabled bool   `env:"SURFACE_OFFSET_ENABLED" default:"true"`
		Layer         string `env:"SURFACE_LAYER" default:"vector" validate:"oneof=vector satellite custom"`
		CustomURL     string `env:"SURFACE_CUSTOM_URL" validate:"required_if=Layer custom,omitempty,url"`
	}

	TrackConfig struct {
		MaxPoints         int     `env:"TRACK_MAX_POINTS" default:"5000" validate:"gte=16"`
		SimplifyTolerance float64 `env:"TRACK_SIMPLIFY_TOLERANCE" default:"0.000001" validate:"gte=0"`
	}

	RabbitMQConfig struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"false"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
		Exchange string `env:"RABBITMQ_EXCHANGE" default:"location_fanout" validate:"required"`
	}
)

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func (c DeviceConfig) LinkState() types.DeviceLinkState {
	st, err := types.ParseDeviceLinkState(c.InitialLinkState)
	if err != nil {
		return types.LinkUnlinked
	}
	return st
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if !logger.ValidateLogLevel(c.App.LogLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.App.LogLevel)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
