package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/persistence"
)

func newAuth(store persistence.UserStore) *AuthService {
	return NewAuthService(store, "test-secret", time.Hour, bcrypt.MinCost)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	auth := newAuth(store)

	res, err := auth.Register(ctx, "  alice ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.NotEmpty(t, res.Token)

	claims, err := auth.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = auth.Register(ctx, "alice", "another")
	assert.ErrorIs(t, err, persistence.ErrDuplicateUser)

	login, err := auth.Login(ctx, "alice", "secret", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, res.UserID, login.UserID)

	_, err = auth.Login(ctx, "alice", "wrong", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "nobody", "secret", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Validation(t *testing.T) {
	auth := newAuth(persistence.NewMemoryStore())
	ctx := context.Background()

	_, err := auth.Register(ctx, "a", "secret")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = auth.Register(ctx, "this-name-is-way-too-long", "secret")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = auth.Register(ctx, "bob", "abc")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := newAuth(persistence.NewMemoryStore())

	_, err := auth.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService(persistence.NewMemoryStore(), "other-secret", time.Hour, bcrypt.MinCost)
	res, err := other.issue(&models.User{ID: 1, Username: "mallory"})
	require.NoError(t, err)
	_, err = auth.ValidateToken(res.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewAuthService(persistence.NewMemoryStore(), "test-secret", time.Nanosecond, bcrypt.MinCost)
	res, err = expired.issue(&models.User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = auth.ValidateToken(res.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_LoginRateLimit(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(persistence.NewMemoryStore())
	_, err := auth.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := auth.Login(ctx, "alice", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = auth.Login(ctx, "alice", "secret", "10.0.0.1")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	_, err = auth.Login(ctx, "alice", "secret", "10.0.0.2")
	assert.NoError(t, err)
}

func TestMatchDeltas(t *testing.T) {
	res := &models.MatchResult{
		Score:  models.Score{Red: 3, Blue: 1},
		Winner: string(models.TeamRed),
		Players: []models.MatchPlayer{
			{SocketID: "a", UserID: 1, Team: models.TeamRed, Goals: 2},
			{SocketID: "b", UserID: 2, Team: models.TeamBlue, Goals: 1},
			{SocketID: "guest", Team: models.TeamBlue},
		},
	}
	deltas := MatchDeltas(res)
	require.Len(t, deltas, 2)
	assert.Equal(t, models.StatsDelta{GoalsScored: 3, GoalsConceded: 1, Wins: 1}, deltas[1])
	assert.Equal(t, models.StatsDelta{GoalsScored: 1, GoalsConceded: 3, Losses: 1}, deltas[2])

	res.Score = models.Score{Red: 2, Blue: 2}
	res.Winner = models.WinnerDraw
	deltas = MatchDeltas(res)
	assert.Equal(t, 1, deltas[1].Draws)
	assert.Equal(t, 1, deltas[2].Draws)
}

func TestPlayerService_RecordMatch(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	alice, err := store.CreateUser(ctx, "alice", "x")
	require.NoError(t, err)

	svc := NewPlayerService(store)
	res := &models.MatchResult{
		RoomID: "room-1",
		Score:  models.Score{Red: 1},
		Winner: string(models.TeamRed),
		Players: []models.MatchPlayer{
			{SocketID: "a", UserID: alice.ID, Team: models.TeamRed},
			{SocketID: "ghost", UserID: 999, Team: models.TeamBlue},
		},
	}
	err = svc.RecordMatch(ctx, res)
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	stats, err := svc.GetPlayerWithStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.MatchesPlayed)

	ranking, err := svc.Ranking(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "alice", ranking[0].Username)
}
