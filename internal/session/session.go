// Package session generates the opaque identifier that scopes server-side
// conversational memory.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Manager holds the session identifier for one conversation. The server
// correlates multi-turn context through it; the client never inspects it.
type Manager struct {
	id string
}

// New creates a manager with a fresh identifier: a high-resolution clock
// sample plus a random component. The encoding is not contractual, only
// practical uniqueness is.
func New() *Manager {
	return &Manager{
		id: fmt.Sprintf("sess-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8]),
	}
}

// ID returns the session identifier.
func (m *Manager) ID() string {
	return m.id
}
