package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
store:
  blockDir: /var/lib/blocks
  startFile: 12
  startByte: 4096
broker:
  hosts: [kafka-1:9092, kafka-2:9092]
  user: relay
  password: secret
  virtualHost: mainnet
  exchange: blocks
  queue: rebuild
rate:
  bytesPerSecond: 1048576
  recordsPerSecond: 50
  interval: 500ms
checkpoint:
  backend: file
  path: /var/lib/blockrelay/checkpoint.json
  flushEvery: 250
relay:
  retryDelay: 3s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, "/var/lib/blocks", cfg.Store.BlockDir)
	require.Equal(t, uint32(12), cfg.Store.StartFile)
	require.Equal(t, uint32(4096), cfg.Store.StartByte)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Hosts)
	require.Equal(t, "mainnet.blocks", cfg.Broker.Topic())
	require.Equal(t, "mainnet.rebuild", cfg.Broker.Group())
	require.Equal(t, 500*time.Millisecond, cfg.Rate.Interval)
	require.Equal(t, 250, cfg.Checkpoint.FlushEvery)
	require.Equal(t, BackendFile, cfg.Checkpoint.Backend)
	require.Equal(t, 3*time.Second, cfg.Relay.RetryDelay)

	// defaults survive for keys the file leaves out
	require.Equal(t, 5*time.Second, cfg.Writer.PollDelay)
	require.Equal(t, "default", cfg.Checkpoint.Name)

	require.NoError(t, cfg.Validate(RoleRelay))
	require.NoError(t, cfg.Validate(RoleWriter))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  blockdirectory: /tmp\n"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BLOCKRELAY_STORE_BLOCK_DIR", "/srv/blocks")
	t.Setenv("BLOCKRELAY_BROKER_HOSTS", "a:9092,b:9092")
	t.Setenv("BLOCKRELAY_RATE_INTERVAL", "2s")
	t.Setenv("BLOCKRELAY_CHECKPOINT_FLUSH_EVERY", "10")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.Equal(t, "/srv/blocks", cfg.Store.BlockDir)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Hosts)
	require.Equal(t, 2*time.Second, cfg.Rate.Interval)
	require.Equal(t, 10, cfg.Checkpoint.FlushEvery)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestValidateMissingSettings(t *testing.T) {
	cfg := Default()

	err := cfg.Validate(RoleRelay)
	require.ErrorIs(t, err, ErrMissingBlockDir)
	require.ErrorIs(t, err, ErrMissingExchange)
	require.ErrorIs(t, err, ErrMissingHosts)

	cfg.Store.BlockDir = "/data"
	cfg.Broker.Hosts = []string{"k:9092"}
	cfg.Broker.Exchange = "blocks"
	require.NoError(t, cfg.Validate(RoleRelay))
	require.ErrorIs(t, cfg.Validate(RoleWriter), ErrMissingQueue)
	require.NoError(t, cfg.Validate(RoleTool))
}

func TestTransportFor(t *testing.T) {
	cfg := Default()
	require.Equal(t, TransportSarama, cfg.TransportFor(RoleRelay))
	require.Equal(t, TransportKafkaGo, cfg.TransportFor(RoleWriter))

	cfg.Broker.Transport = TransportSarama
	cfg.Store.BlockDir = "/d"
	cfg.Broker.Hosts = []string{"k"}
	cfg.Broker.Exchange = "e"
	cfg.Broker.Queue = "q"
	require.Error(t, cfg.Validate(RoleWriter))
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "blockrelay.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(RoleRelay))
	require.NoError(t, cfg.Validate(RoleWriter))
	require.Equal(t, "blocks", cfg.Broker.Topic())
}
