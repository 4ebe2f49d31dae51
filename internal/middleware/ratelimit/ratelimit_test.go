package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBudget(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 5})
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.allow("user-1"), "request %d should pass", i)
	}
	assert.False(t, rl.allow("user-1"))
}

func TestAllowIsolatesClients(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	assert.True(t, rl.allow("user-1"))
	assert.False(t, rl.allow("user-1"))
	assert.True(t, rl.allow("user-2"))
}

func TestDefaultBudget(t *testing.T) {
	rl := New(Config{})
	defer rl.Stop()

	assert.Equal(t, 60.0, rl.maxTokens)
	assert.Equal(t, 1.0, rl.refillRate)
}
