package netsimconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValues(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, logrus.InfoLevel, c.LogLevel)
	assert.True(t, c.ShutdownOnIdle)
	assert.Equal(t, "pcaps", c.CaptureDir)
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	c := DefaultConfig()
	c.LogLevel = logrus.DebugLevel
	logger := c.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestParseDiscoveryReadsRecognisedKeys(t *testing.T) {
	d := ParseDiscovery(strings.NewReader("grpc.port=8080\nweb.port=9000\n"))
	assert.Equal(t, "8080", d.GrpcAddress)
	assert.Equal(t, 9000, d.WebPort)
	assert.True(t, d.HasWebPort)
}

func TestParseDiscoverySkipsMalformedLines(t *testing.T) {
	d := ParseDiscovery(strings.NewReader("not-a-key-value-line\ngrpc.port=\nweb.port=notanumber\n# comment\n"))
	assert.Equal(t, "", d.GrpcAddress)
	assert.False(t, d.HasWebPort)
}

func TestParseDiscoveryAcceptsHostPort(t *testing.T) {
	d := ParseDiscovery(strings.NewReader("grpc.port=127.0.0.1:12345\n"))
	assert.Equal(t, "127.0.0.1:12345", d.GrpcAddress)
}

func TestWriteThenParseDiscoveryRoundTrips(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteDiscovery(&buf, "127.0.0.1:6000", 7000))

	d := ParseDiscovery(strings.NewReader(buf.String()))
	assert.Equal(t, "127.0.0.1:6000", d.GrpcAddress)
	assert.Equal(t, 7000, d.WebPort)
}

func TestDiscoveryFileNameWithAndWithoutInstance(t *testing.T) {
	assert.Equal(t, "netsim.ini", DiscoveryFileName(""))
	assert.Equal(t, "netsim_abc123.ini", DiscoveryFileName("abc123"))
}

func TestLoadDiscoveryMissingFileReturnsZeroValue(t *testing.T) {
	d, err := LoadDiscovery("definitely-does-not-exist-instance")
	require.NoError(t, err)
	assert.Equal(t, Discovery{}, d)
}

func TestLoadRadioDefaultsEmptyPathReturnsBuiltins(t *testing.T) {
	rd, err := LoadRadioDefaults("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRadioDefaults(), rd)
}

func TestLoadRadioDefaultsParsesYamlOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radio-defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("beacon:\n  mode: low_latency\n  tx_power_level: high\n  scannable: true\n"), 0o644))

	rd, err := LoadRadioDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, "low_latency", rd.Beacon.Mode)
	assert.Equal(t, "high", rd.Beacon.TxPowerLevel)
	assert.True(t, rd.Beacon.Scannable)
}

func TestLoadRadioDefaultsMissingFileErrors(t *testing.T) {
	_, err := LoadRadioDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
