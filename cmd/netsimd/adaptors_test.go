package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"netsim/internal/bleadv"
)

func TestBeaconModeFromConfig(t *testing.T) {
	assert.Equal(t, bleadv.ModeBalanced, beaconModeFromConfig("balanced"))
	assert.Equal(t, bleadv.ModeLowLatency, beaconModeFromConfig("low_latency"))
	assert.Equal(t, bleadv.ModeLowPower, beaconModeFromConfig("low_power"))
	assert.Equal(t, bleadv.ModeLowPower, beaconModeFromConfig("nonsense"))
	assert.Equal(t, bleadv.ModeLowPower, beaconModeFromConfig(""))
}

func TestBeaconTxPowerFromConfig(t *testing.T) {
	assert.Equal(t, bleadv.PowerUltraLow, beaconTxPowerFromConfig("ultra_low"))
	assert.Equal(t, bleadv.PowerLow, beaconTxPowerFromConfig("low"))
	assert.Equal(t, bleadv.PowerMedium, beaconTxPowerFromConfig("medium"))
	assert.Equal(t, bleadv.PowerHigh, beaconTxPowerFromConfig("high"))
	assert.Equal(t, bleadv.PowerMedium, beaconTxPowerFromConfig("unknown"))
}
