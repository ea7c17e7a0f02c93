// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/soccerserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond, // 慢SQL阈值
			LogLevel:                  gormlogger.Warn,        // 日志级别
			IgnoreRecordNotFoundError: true,
			Colorful:                  false, // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoom{},
		&models.GormPlayer{},
		&models.GormMatchRecord{},
		&models.GormUser{},
		&models.GormUserStats{},
	)
}

// SaveRoomState 保存房间状态
func (p *GormPostgreSQL) SaveRoomState(ctx context.Context, rec models.RoomRecord) error {
	room := models.GormRoom{
		RoomID:    rec.RoomID,
		Width:     rec.Width,
		Height:    rec.Height,
		RedScore:  rec.RedScore,
		BlueScore: rec.BlueScore,
		MatchTime: rec.MatchTime,
		Phase:     string(rec.Phase),
		IsPlaying: rec.IsPlaying,
		Players:   rec.Players,
	}
	// 使用UPSERT操作
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"width", "height", "red_score", "blue_score", "match_time",
			"phase", "is_playing", "players", "updated_at",
		}),
	}).Create(&room).Error
}

// SavePlayer 保存玩家位置
func (p *GormPostgreSQL) SavePlayer(ctx context.Context, rec models.PlayerRecord) error {
	player := models.GormPlayer{
		SocketID: rec.SocketID,
		RoomID:   rec.RoomID,
		X:        rec.X,
		Y:        rec.Y,
		Team:     string(rec.Team),
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "socket_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_id", "x", "y", "team", "updated_at"}),
	}).Create(&player).Error
}

// DeletePlayer 删除玩家 (hard delete, the socket id never comes back)
func (p *GormPostgreSQL) DeletePlayer(ctx context.Context, socketID string) error {
	return p.db.WithContext(ctx).Unscoped().
		Where("socket_id = ?", socketID).
		Delete(&models.GormPlayer{}).Error
}

// SaveMatchResult 保存比赛记录
func (p *GormPostgreSQL) SaveMatchResult(ctx context.Context, res *models.MatchResult) error {
	record := models.GormMatchRecord{
		RoomID:    res.RoomID,
		RedScore:  res.Score.Red,
		BlueScore: res.Score.Blue,
		Winner:    res.Winner,
		Duration:  int(res.Duration / time.Second),
		Players:   res.Players,
		EndedAt:   res.EndedAt,
	}
	return p.db.WithContext(ctx).Create(&record).Error
}

func (p *GormPostgreSQL) CreateUser(ctx context.Context, username, passHash string) (*models.User, error) {
	user := models.GormUser{Username: username, PassHash: passHash}
	if err := p.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return gormUser(&user), nil
}

func (p *GormPostgreSQL) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	var user models.GormUser
	if err := p.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return gormUser(&user), nil
}

func (p *GormPostgreSQL) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.GormUser
	if err := p.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return gormUser(&user), nil
}

// AddUserStats 累加统计, creating the row on a user's first match
func (p *GormPostgreSQL) AddUserStats(ctx context.Context, userID int64, delta models.StatsDelta) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.GormUser
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		row := models.GormUserStats{
			UserID:        userID,
			GoalsScored:   delta.GoalsScored,
			GoalsConceded: delta.GoalsConceded,
			Wins:          delta.Wins,
			Losses:        delta.Losses,
			Draws:         delta.Draws,
			MatchesPlayed: 1,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"goals_scored":   gorm.Expr("user_stats.goals_scored + ?", delta.GoalsScored),
				"goals_conceded": gorm.Expr("user_stats.goals_conceded + ?", delta.GoalsConceded),
				"wins":           gorm.Expr("user_stats.wins + ?", delta.Wins),
				"losses":         gorm.Expr("user_stats.losses + ?", delta.Losses),
				"draws":          gorm.Expr("user_stats.draws + ?", delta.Draws),
				"matches_played": gorm.Expr("user_stats.matches_played + 1"),
				"updated_at":     time.Now(),
			}),
		}).Create(&row).Error
	})
}

func (p *GormPostgreSQL) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	user, err := p.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &models.UserStats{UserID: user.ID, Username: user.Username}
	var row models.GormUserStats
	err = p.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, err
	default:
		stats.GoalsScored = row.GoalsScored
		stats.GoalsConceded = row.GoalsConceded
		stats.Wins = row.Wins
		stats.Losses = row.Losses
		stats.Draws = row.Draws
		stats.MatchesPlayed = row.MatchesPlayed
	}
	return finishStats(stats), nil
}

// GetRanking 排行榜
func (p *GormPostgreSQL) GetRanking(ctx context.Context, limit int) ([]models.UserStats, error) {
	var out []models.UserStats
	err := p.db.WithContext(ctx).
		Table("user_stats AS s").
		Select(`u.id AS user_id, u.username, s.goals_scored, s.goals_conceded,
			s.wins, s.losses, s.draws, s.matches_played`).
		Joins("JOIN users u ON u.id = s.user_id").
		Where("s.matches_played > 0").
		Order("s.wins DESC, (s.goals_scored - s.goals_conceded) DESC, s.goals_scored DESC, u.id").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		finishStats(&out[i])
	}
	return out, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormUser(u *models.GormUser) *models.User {
	return &models.User{ID: u.ID, Username: u.Username, PassHash: u.PassHash, CreatedAt: u.CreatedAt}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
