package room

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/wfunc/soccerserver/logger"
)

const maxRoomIDLength = 32

// Observer is notified after rooms are created or removed. Calls happen outside the registry lock.
type Observer interface {
	RoomCreated(r *Room)
	RoomRemoved(r *Room)
}

// Registry 管理所有房间
type Registry struct {
	settings  Settings
	rooms     map[string]*Room
	order     []string // creation order
	seq       uint64
	observers []Observer
	mutex     sync.RWMutex
}

// NewRegistry 创建一个新的房间管理器
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		rooms:    make(map[string]*Room),
	}
}

func (m *Registry) Settings() Settings {
	return m.settings
}

func (m *Registry) AddObserver(o Observer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.observers = append(m.observers, o)
}

// FindOrCreate returns the room with the sanitized id, creating it if absent.
// An id that sanitizes to nothing resolves to an available room.
func (m *Registry) FindOrCreate(roomID string) *Room {
	id := SanitizeRoomID(roomID)
	if id == "" {
		r, _ := m.Get(m.FindAvailable())
		if r != nil {
			return r
		}
		id = m.nextID()
	}

	if r, ok := m.Get(id); ok {
		return r
	}

	m.mutex.Lock()
	if r, ok := m.rooms[id]; ok {
		m.mutex.Unlock()
		return r
	}
	r := m.create(id)
	observers := slices.Clone(m.observers)
	m.mutex.Unlock()

	m.notifyCreated(observers, r)
	return r
}

// FindAvailable returns the id of the oldest room with a free slot, creating a new room if none has one.
// The answer is advisory: Join re-checks capacity.
func (m *Registry) FindAvailable() string {
	if id := m.scanAvailable(); id != "" {
		return id
	}

	m.mutex.Lock()
	for _, id := range m.order {
		if m.rooms[id].PlayerCount() < m.settings.MaxPlayers {
			m.mutex.Unlock()
			return id
		}
	}
	r := m.create(m.nextIDLocked())
	observers := slices.Clone(m.observers)
	m.mutex.Unlock()

	m.notifyCreated(observers, r)
	return r.ID
}

func (m *Registry) scanAvailable() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, id := range m.order {
		if m.rooms[id].PlayerCount() < m.settings.MaxPlayers {
			return id
		}
	}
	return ""
}

// Join puts socketID into the requested room, or into any available room when roomID is empty.
// A room that filled up or closed between lookup and join is retried against another room
// unless the caller asked for it by name.
func (m *Registry) Join(roomID, socketID string) (*Room, Player, error) {
	named := SanitizeRoomID(roomID) != ""
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var r *Room
		if named {
			r = m.FindOrCreate(roomID)
		} else {
			r = m.FindOrCreate(m.FindAvailable())
		}
		p, err := r.Join(socketID)
		switch {
		case err == nil:
			return r, p, nil
		case errors.Is(err, ErrRoomFull) && named:
			return r, Player{}, err
		case errors.Is(err, ErrRoomFull), errors.Is(err, ErrRoomClosed):
			lastErr = err
			continue
		default:
			return r, Player{}, err
		}
	}
	return nil, Player{}, lastErr
}

// Get 从管理器中获取一个房间
func (m *Registry) Get(roomID string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, ok := m.rooms[roomID]
	return r, ok
}

// Remove deletes an empty room. Rooms with players are never removed.
func (m *Registry) Remove(roomID string) error {
	m.mutex.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mutex.Unlock()
		return ErrUnknownRoom
	}
	if !r.closeIfEmpty() {
		m.mutex.Unlock()
		return ErrRoomNotEmpty
	}
	delete(m.rooms, roomID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == roomID })
	observers := slices.Clone(m.observers)
	m.mutex.Unlock()

	logger.Log.Infof("room %s removed", roomID)
	for _, o := range observers {
		o.RoomRemoved(r)
	}
	return nil
}

// Rooms lists live rooms in creation order.
func (m *Registry) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.order))
	for _, id := range m.order {
		rooms = append(rooms, m.rooms[id])
	}
	return rooms
}

func (m *Registry) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// PlayerCount sums the players of all rooms.
func (m *Registry) PlayerCount() int {
	n := 0
	for _, r := range m.Rooms() {
		n += r.PlayerCount()
	}
	return n
}

func (m *Registry) create(id string) *Room {
	r := NewRoom(id, m.settings)
	m.rooms[id] = r
	m.order = append(m.order, id)
	logger.Log.Infof("room %s created", id)
	return r
}

func (m *Registry) notifyCreated(observers []Observer, r *Room) {
	for _, o := range observers {
		o.RoomCreated(r)
	}
}

func (m *Registry) nextID() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.nextIDLocked()
}

func (m *Registry) nextIDLocked() string {
	for {
		m.seq++
		id := fmt.Sprintf("room-%d", m.seq)
		if _, taken := m.rooms[id]; !taken {
			return id
		}
	}
}

// SanitizeRoomID lower-cases the id, turns each run of whitespace into one dash and
// drops everything outside [a-z0-9-_].
func SanitizeRoomID(raw string) string {
	var b strings.Builder
	inSpace := false
	for _, c := range strings.ToLower(strings.TrimSpace(raw)) {
		if b.Len() >= maxRoomIDLength {
			break
		}
		if unicode.IsSpace(c) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		}
	}
	return b.String()
}
