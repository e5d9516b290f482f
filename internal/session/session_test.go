package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDIsStable(t *testing.T) {
	m := New()
	assert.Equal(t, m.ID(), m.ID())
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New().ID()
		assert.False(t, seen[id], "duplicate session id %s", id)
		assert.True(t, strings.HasPrefix(id, "sess-"))
		seen[id] = true
	}
}
