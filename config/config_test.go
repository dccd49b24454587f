package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wash2/NetBricks/config"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	c := config.Config{}.WithDefaults()
	assert.Equal(t, 256, c.RingCapacity)
	assert.Equal(t, 32, c.BurstSize)
	assert.Equal(t, 2048, c.MbufCapacity)
	assert.Equal(t, 4, c.StackSize)
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := config.Config{RingCapacity: 64, BurstSize: 8}.WithDefaults()
	assert.Equal(t, 64, c.RingCapacity)
	assert.Equal(t, 8, c.BurstSize)
	assert.Equal(t, 2048, c.MbufCapacity)
}
