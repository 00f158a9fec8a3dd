// Package puzzle holds the ephemeral jigsaw sessions that gate content
// unlocks. Sessions live in process memory only; a deployment with multiple
// service instances must pin sessions to one instance or swap the store for
// a shared cache.
package puzzle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionTTL bounds how long a generated puzzle remains solvable.
const SessionTTL = 30 * time.Minute

// Session is one puzzle instance. Solution is the ordered sequence of piece
// ids the submission must match exactly; Shuffled is the order presented to
// the client.
type Session struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	Solution  []string  `json:"-"`
	Shuffled  []string  `json:"pieces"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Matches reports whether submitted equals the solution, position by
// position. Set equality is not enough; order matters.
func (s *Session) Matches(submitted []string) bool {
	if len(submitted) != len(s.Solution) {
		return false
	}
	for i := range submitted {
		if submitted[i] != s.Solution[i] {
			return false
		}
	}
	return true
}

// Store is the injected session backend.
type Store interface {
	Create(contentID string, rows, cols int) *Session
	Get(id string) (*Session, bool)
	Delete(id string)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nowFn    func() time.Time
	rng      *rand.Rand
}

// NewMemoryStore builds an empty in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		nowFn:    time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNowFunc overrides the time source for deterministic testing.
func (m *MemoryStore) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.nowFn = now
}

// Create slices an rows x cols grid into piece ids and registers a session
// with the in-order solution and a shuffled presentation order.
func (m *MemoryStore) Create(contentID string, rows, cols int) *Session {
	if rows < 2 {
		rows = 3
	}
	if cols < 2 {
		cols = 3
	}
	solution := make([]string, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			solution = append(solution, fmt.Sprintf("p-%d-%d", r, c))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	shuffled := make([]string, len(solution))
	copy(shuffled, solution)
	m.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	now := m.nowFn()
	session := &Session{
		ID:        uuid.NewString(),
		ContentID: contentID,
		Solution:  solution,
		Shuffled:  shuffled,
		Rows:      rows,
		Cols:      cols,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	m.sessions[session.ID] = session
	m.prune(now)
	return session
}

// Get returns a live session. Expired or unknown sessions both miss; the
// caller treats a miss as an invalid solution, not a distinct error.
func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if !m.nowFn().Before(session.ExpiresAt) {
		delete(m.sessions, id)
		return nil, false
	}
	return session, true
}

// Delete removes a consumed session.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// prune drops expired sessions. Callers must hold the mutex.
func (m *MemoryStore) prune(now time.Time) {
	for id, session := range m.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}
