package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mysql:
  dsn: user:pass@tcp(db:3306)/orders?parseTime=true
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
pool:
  address_file: /var/lib/fulfillment/addresses.txt
  debounce: 5s
http:
  listen_addr: ":9000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(db:3306)/orders?parseTime=true", cfg.MySQL.DSN)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/var/lib/fulfillment/addresses.txt", cfg.Pool.AddressFile)
	assert.Equal(t, 5*time.Second, cfg.Pool.Debounce.Std())
	assert.Equal(t, ":9000", cfg.HTTP.ListenAddr)

	// Unset values fall back to defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "stock-audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval.Std())
	assert.Equal(t, ":9100", cfg.HTTP.MetricsAddr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.MySQL.DSN)
	assert.Equal(t, 2*time.Second, cfg.Pool.Debounce.Std())
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
}
