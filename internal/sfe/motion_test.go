package sfe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testResolvedConfig() resolvedConfig {
	return resolveConfig(nil)
}

func TestMotionGateImpulseRejection(t *testing.T) {
	g := newMotionGate(testResolvedConfig())
	first := g.observe(1.0, 0, 0)
	// An impulsive spike (m > 5 * noise_threshold = 10) should be
	// rejected, reusing the last accepted value.
	spike := g.observe(20.0, 0, 0)
	assert.Equal(t, first, spike)
}

func TestMotionGateStickyTransitions(t *testing.T) {
	g := newMotionGate(testResolvedConfig())
	assert.False(t, g.moving)

	// Several samples above 2*tau=1.0 should flip to moving.
	for i := 0; i < 6; i++ {
		g.observe(3.0, 0, 0)
	}
	assert.True(t, g.moving)

	// A single low sample shouldn't immediately flip back (sticky).
	g.observe(0.0, 0, 0)
	assert.True(t, g.moving)

	// 50 consecutive low samples should flip back to stationary.
	for i := 0; i < 60; i++ {
		g.observe(0.0, 0, 0)
	}
	assert.False(t, g.moving)
}

func TestMotionGateTrimmedMeanPassthroughBelowMinSize(t *testing.T) {
	g := newMotionGate(testResolvedConfig())
	m := g.observe(2.0, 0, 0)
	assert.Equal(t, 2.0, m)
}
