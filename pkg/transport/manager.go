package transport

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// PeerInfo describes one connection tracked by a Manager.
type PeerInfo struct {
	ID            string
	Kind          Kind
	RemoteAddr    string
	EstablishedAt time.Time
}

// Manager keeps the live connections of a node by id so they can be looked
// up, listed and closed together.
type Manager struct {
	mu    sync.RWMutex
	peers map[string]*peerEntry
}

type peerEntry struct {
	info PeerInfo
	conn Conn
}

func NewManager() *Manager { return &Manager{peers: make(map[string]*peerEntry)} }

// Add registers c under id. A connection previously registered under the
// same id is returned so the caller can close it.
func (m *Manager) Add(id string, c Conn) (old Conn) {
	info := PeerInfo{ID: id, Kind: c.Kind(), EstablishedAt: time.Now()}
	if ra := c.RemoteAddr(); ra != nil {
		info.RemoteAddr = ra.String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if pe := m.peers[id]; pe != nil {
		old = pe.conn
	}
	m.peers[id] = &peerEntry{info: info, conn: c}
	return old
}

// Remove forgets id without closing its connection. It only removes the
// entry if it still refers to c.
func (m *Manager) Remove(id string, c Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pe := m.peers[id]; pe != nil && pe.conn == c {
		delete(m.peers, id)
		return true
	}
	return false
}

// Get returns the connection registered under id, if any.
func (m *Manager) Get(id string) Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pe := m.peers[id]; pe != nil {
		return pe.conn
	}
	return nil
}

// Len returns the number of tracked connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// List returns all tracked peers ordered by id.
func (m *Manager) List() []PeerInfo {
	m.mu.RLock()
	out := make([]PeerInfo, 0, len(m.peers))
	for _, pe := range m.peers {
		out = append(out, pe.info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClosePeer closes and forgets the connection registered under id.
func (m *Manager) ClosePeer(id string) error {
	m.mu.Lock()
	pe := m.peers[id]
	delete(m.peers, id)
	m.mu.Unlock()
	if pe == nil {
		return nil
	}
	return pe.conn.Close()
}

// CloseAll closes every tracked connection.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*peerEntry)
	m.mu.Unlock()

	var errs []error
	for _, pe := range peers {
		if err := pe.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
