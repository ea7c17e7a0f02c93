// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/soccerserver/models"
)

// Mirror is the best-effort durable copy of live rooms. The engine's memory is
// authoritative; a failed write is logged and dropped by the caller.
type Mirror interface {
	SaveRoomState(ctx context.Context, rec models.RoomRecord) error
	SavePlayer(ctx context.Context, rec models.PlayerRecord) error
	DeletePlayer(ctx context.Context, socketID string) error
	SaveMatchResult(ctx context.Context, res *models.MatchResult) error
}

// UserStore 用户与统计
type UserStore interface {
	CreateUser(ctx context.Context, username, passHash string) (*models.User, error)
	GetUserByName(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	AddUserStats(ctx context.Context, userID int64, delta models.StatsDelta) error
	GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	// GetRanking orders users who played at least once by wins, goal difference, goals scored.
	GetRanking(ctx context.Context, limit int) ([]models.UserStats, error)
}

// Database 数据库接口
type Database interface {
	Mirror
	UserStore
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateUser  = errors.New("username already taken")
)

func finishStats(stats *models.UserStats) *models.UserStats {
	stats.GoalDifference = stats.GoalsScored - stats.GoalsConceded
	return stats
}
