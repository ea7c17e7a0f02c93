// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormRoom 房间镜像
type GormRoom struct {
	gorm.Model
	RoomID    string  `gorm:"uniqueIndex;not null"`
	Width     float64 `gorm:"not null;default:800"`
	Height    float64 `gorm:"not null;default:600"`
	RedScore  int     `gorm:"default:0"`
	BlueScore int     `gorm:"default:0"`
	MatchTime int     `gorm:"default:60"`
	Phase     string  `gorm:"not null"`
	IsPlaying bool    `gorm:"default:false"`
	Players   int     `gorm:"default:0"`
}

func (GormRoom) TableName() string { return "game_rooms" }

// GormPlayer 房间内玩家镜像
type GormPlayer struct {
	gorm.Model
	SocketID string  `gorm:"uniqueIndex;not null"`
	RoomID   string  `gorm:"index;not null"`
	X        float64 `gorm:"default:400"`
	Y        float64 `gorm:"default:300"`
	Team     string  `gorm:"not null"`
}

func (GormPlayer) TableName() string { return "players" }

// GormMatchRecord 比赛记录
type GormMatchRecord struct {
	gorm.Model
	RoomID    string        `gorm:"index;not null"`
	RedScore  int           `gorm:"not null"`
	BlueScore int           `gorm:"not null"`
	Winner    string        `gorm:"not null"`
	Duration  int           `gorm:"default:0"` // 比赛时长(秒)
	Players   []MatchPlayer `gorm:"serializer:json"`
	EndedAt   time.Time
}

func (GormMatchRecord) TableName() string { return "match_records" }

// GormUser 注册用户
type GormUser struct {
	ID        int64  `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	PassHash  string `gorm:"not null"`
	CreatedAt time.Time
}

func (GormUser) TableName() string { return "users" }

// GormUserStats 用户统计
type GormUserStats struct {
	UserID        int64 `gorm:"primaryKey"`
	GoalsScored   int   `gorm:"default:0"`
	GoalsConceded int   `gorm:"default:0"`
	Wins          int   `gorm:"default:0"`
	Losses        int   `gorm:"default:0"`
	Draws         int   `gorm:"default:0"`
	MatchesPlayed int   `gorm:"default:0"`
	UpdatedAt     time.Time
}

func (GormUserStats) TableName() string { return "user_stats" }
