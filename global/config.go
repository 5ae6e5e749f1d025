package global

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port      int    `yaml:"port" validate:"gt=0"`
	GatewayID string `yaml:"gatewayId"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	PoolSize int    `yaml:"poolSize" validate:"gte=0"`
}

type NatsConfig struct {
	Servers  []string `yaml:"servers" validate:"required,min=1"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" validate:"required"`
	Database string `yaml:"database" validate:"required"`
}

type AuthConfig struct {
	Secret string `yaml:"secret" validate:"required,min=16"`
	Alg    string `yaml:"alg"`
}

// Duration accepts "2s"-style values in YAML, which yaml.v3 does not
// parse into time.Duration on its own.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type SamplerConfig struct {
	SpeedThresholdMS   float64  `yaml:"speedThresholdMS"`
	MovingInterval     Duration `yaml:"movingInterval"`
	StationaryInterval Duration `yaml:"stationaryInterval"`
	RetryBackoff       Duration `yaml:"retryBackoff"`
}

type AppConfig struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	Redis   RedisConfig   `yaml:"redis" validate:"required"`
	Nats    NatsConfig    `yaml:"nats" validate:"required"`
	Mongo   MongoConfig   `yaml:"mongo" validate:"required"`
	Auth    AuthConfig    `yaml:"auth" validate:"required"`
	Sampler SamplerConfig `yaml:"sampler"`
}

// LoadConfig reads and validates the YAML config. CONVOY_CONFIG
// overrides the search path; CONVOY_JWT_SECRET overrides the secret so
// it can stay out of the file.
func LoadConfig() (*AppConfig, error) {
	paths := []string{"config.yml", "/etc/convoy/config.yml"}
	if p := os.Getenv("CONVOY_CONFIG"); p != "" {
		paths = []string{p}
	}

	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if sec := os.Getenv("CONVOY_JWT_SECRET"); sec != "" {
		cfg.Auth.Secret = sec
	}
	if cfg.Server.GatewayID == "" {
		host, _ := os.Hostname()
		cfg.Server.GatewayID = "convoy-gw-" + host
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
