package surface

import "sync"

// Memory is an Accessor that keeps the flag in process memory.
// It serves headless sessions and tests.
type Memory struct {
	mu     sync.Mutex
	secure bool
	writes []bool
	err    error
}

// NewMemory creates an in-memory accessor with the given initial flag
func NewMemory(initial bool) *Memory {
	return &Memory{secure: initial}
}

func (m *Memory) SetSecure(secure bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.secure = secure
	m.writes = append(m.writes, secure)
	return nil
}

func (m *Memory) IsSecure() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secure, nil
}

func (m *Memory) Describe() (*Info, error) {
	return &Info{AppName: "memory", WindowTitle: "in-memory surface", DisplayServer: "memory"}, nil
}

func (m *Memory) IsAvailable() bool {
	return true
}

func (m *Memory) GetDisplayServer() string {
	return "memory"
}

func (m *Memory) Close() error {
	return nil
}

// Writes returns every value passed to SetSecure, oldest first
func (m *Memory) Writes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.writes))
	copy(out, m.writes)
	return out
}

// FailWith makes subsequent SetSecure calls return err; nil restores normal behaviour
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
