package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes yaml values like "5s" or "2m" into a duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the static infrastructure configuration loaded at startup.
// Runtime-tunable values (the cash reservation timeout) live in the
// settings table instead.
type Config struct {
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		AuditTopic        string   `yaml:"audit_topic"`
		NotificationTopic string   `yaml:"notification_topic"`
	} `yaml:"kafka"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Pool struct {
		AddressFile string   `yaml:"address_file"`
		Debounce    Duration `yaml:"debounce"`
	} `yaml:"pool"`
	Sweeper struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"sweeper"`
	HTTP struct {
		ListenAddr  string `yaml:"listen_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"http"`
}

// Load reads the yaml config file and fills in defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a config suitable for local development.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MySQL.DSN == "" {
		c.MySQL.DSN = "root:root@tcp(localhost:3306)/fulfillment?parseTime=true&loc=UTC"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.AuditTopic == "" {
		c.Kafka.AuditTopic = "stock-audit"
	}
	if c.Kafka.NotificationTopic == "" {
		c.Kafka.NotificationTopic = "notifications"
	}
	if c.Jaeger.Endpoint == "" {
		c.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	}
	if c.Pool.AddressFile == "" {
		c.Pool.AddressFile = "pool_addresses.txt"
	}
	if c.Pool.Debounce <= 0 {
		c.Pool.Debounce = Duration(2 * time.Second)
	}
	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = Duration(time.Minute)
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.MetricsAddr == "" {
		c.HTTP.MetricsAddr = ":9100"
	}
}
