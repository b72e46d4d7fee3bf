package adapter

import "sync"

// #region manager

// Manager owns a named set of adapters plus one active slot and the index of
// the previously active adapter. Hot-swap is "promote by name" or "clear";
// weights are never restored from a snapshot at this level.
type Manager struct {
	mu       sync.Mutex
	adapters []*Adapter
	active   int // index into adapters, -1 when none
	previous int // previously active index, -1 when none
}

// NewManager creates an empty manager with no active adapter.
func NewManager() *Manager {
	return &Manager{active: -1, previous: -1}
}

// RegisterAdapter appends an adapter to the collection.
func (m *Manager) RegisterAdapter(a *Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, a)
}

// Activate promotes the named adapter. An unknown name clears the active
// slot instead of erroring; callers must check Active() != nil.
func (m *Manager) Activate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.previous = m.active
	m.active = -1
	for i, a := range m.adapters {
		if a.Name() == name {
			m.active = i
			return
		}
	}
}

// Deactivate clears the active slot.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = m.active
	m.active = -1
}

// Unregister removes the named adapter. If it was active or previously
// active, those slots are cleared.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.adapters {
		if a.Name() != name {
			continue
		}
		m.adapters = append(m.adapters[:i], m.adapters[i+1:]...)
		switch {
		case m.active == i:
			m.active = -1
		case m.active > i:
			m.active--
		}
		switch {
		case m.previous == i:
			m.previous = -1
		case m.previous > i:
			m.previous--
		}
		return
	}
}

// Active returns the active adapter, or nil.
func (m *Manager) Active() *Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active < 0 || m.active >= len(m.adapters) {
		return nil
	}
	return m.adapters[m.active]
}

// Previous returns the previously active adapter, or nil.
func (m *Manager) Previous() *Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previous < 0 || m.previous >= len(m.adapters) {
		return nil
	}
	return m.adapters[m.previous]
}

// Names lists registered adapter names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return names
}

// #endregion manager
