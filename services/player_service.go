// services/player_service.go
package services

import (
	"context"
	"errors"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/persistence"
)

var ErrStatsUnavailable = errors.New("player statistics are not available")

type PlayerService struct {
	db persistence.UserStore
}

func NewPlayerService(db persistence.UserStore) *PlayerService {
	return &PlayerService{db: db}
}

// MatchDeltas 计算每个已登录玩家的统计增量. Goals scored and conceded are the
// team's, so a win always means a positive goal difference.
func MatchDeltas(res *models.MatchResult) map[int64]models.StatsDelta {
	deltas := make(map[int64]models.StatsDelta)
	for _, p := range res.Players {
		if p.UserID == 0 {
			continue
		}
		d := models.StatsDelta{
			GoalsScored:   res.Score.Of(p.Team),
			GoalsConceded: res.Score.Of(p.Team.Opponent()),
		}
		switch res.Winner {
		case string(p.Team):
			d.Wins = 1
		case models.WinnerDraw:
			d.Draws = 1
		default:
			d.Losses = 1
		}
		deltas[p.UserID] = d
	}
	return deltas
}

// RecordMatch 更新比赛统计. One user failing does not stop the others.
func (s *PlayerService) RecordMatch(ctx context.Context, res *models.MatchResult) error {
	var errs []error
	for userID, delta := range MatchDeltas(res) {
		if err := s.db.AddUserStats(ctx, userID, delta); err != nil {
			logger.Log.Warnf("room %s: stats for user %d: %v", res.RoomID, userID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetPlayerWithStats 获取玩家信息和统计
func (s *PlayerService) GetPlayerWithStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	return s.db.GetUserStats(ctx, userID)
}

// Ranking 排行榜
func (s *PlayerService) Ranking(ctx context.Context, limit int) ([]models.UserStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.db.GetRanking(ctx, limit)
}
