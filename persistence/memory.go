package persistence

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/wfunc/soccerserver/models"
)

// MemoryStore keeps everything in process. It is the default driver and the test double.
type MemoryStore struct {
	mutex   sync.RWMutex
	rooms   map[string]models.RoomRecord
	players map[string]models.PlayerRecord
	results []models.MatchResult
	users   map[int64]*models.User
	stats   map[int64]models.UserStats
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]models.RoomRecord),
		players: make(map[string]models.PlayerRecord),
		users:   make(map[int64]*models.User),
		stats:   make(map[int64]models.UserStats),
	}
}

func (m *MemoryStore) SaveRoomState(_ context.Context, rec models.RoomRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rooms[rec.RoomID] = rec
	return nil
}

func (m *MemoryStore) SavePlayer(_ context.Context, rec models.PlayerRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.players[rec.SocketID] = rec
	return nil
}

func (m *MemoryStore) DeletePlayer(_ context.Context, socketID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.players, socketID)
	return nil
}

func (m *MemoryStore) SaveMatchResult(_ context.Context, res *models.MatchResult) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	cp := *res
	cp.Players = slices.Clone(res.Players)
	m.results = append(m.results, cp)
	return nil
}

func (m *MemoryStore) Room(roomID string) (models.RoomRecord, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rec, ok := m.rooms[roomID]
	return rec, ok
}

func (m *MemoryStore) Player(socketID string) (models.PlayerRecord, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rec, ok := m.players[socketID]
	return rec, ok
}

func (m *MemoryStore) Results() []models.MatchResult {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return slices.Clone(m.results)
}

func (m *MemoryStore) CreateUser(_ context.Context, username, passHash string) (*models.User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, ErrDuplicateUser
		}
	}
	m.nextID++
	u := &models.User{ID: m.nextID, Username: username, PassHash: passHash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByName(_ context.Context, username string) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) AddUserStats(_ context.Context, userID int64, delta models.StatsDelta) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrRecordNotFound
	}
	s := m.stats[userID]
	s.GoalsScored += delta.GoalsScored
	s.GoalsConceded += delta.GoalsConceded
	s.Wins += delta.Wins
	s.Losses += delta.Losses
	s.Draws += delta.Draws
	s.MatchesPlayed++
	m.stats[userID] = s
	return nil
}

func (m *MemoryStore) GetUserStats(_ context.Context, userID int64) (*models.UserStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	s := m.stats[userID]
	s.UserID = u.ID
	s.Username = u.Username
	return finishStats(&s), nil
}

func (m *MemoryStore) GetRanking(_ context.Context, limit int) ([]models.UserStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var out []models.UserStats
	for id, s := range m.stats {
		if s.MatchesPlayed == 0 {
			continue
		}
		s.UserID = id
		s.Username = m.users[id].Username
		out = append(out, *finishStats(&s))
	}
	slices.SortFunc(out, compareRanking)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func compareRanking(a, b models.UserStats) int {
	if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalDifference, a.GoalDifference); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalsScored, a.GoalsScored); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

func (m *MemoryStore) Close() error { return nil }
