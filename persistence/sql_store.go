// persistence/sql_store.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/wfunc/soccerserver/models"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() string {
	return string(d)
}

// SQLStore is the database/sql implementation, Postgres through lib/pq or an
// embedded SQLite file through modernc. The schema is owned by Migrate.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore 创建数据库连接, 迁移表结构
func NewSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	if err := Migrate(dialect, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池
	if dialect == DialectSQLite {
		// single writer, avoids SQLITE_BUSY under concurrent mirror writes
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

// SaveRoomState 保存房间状态
func (s *SQLStore) SaveRoomState(ctx context.Context, rec models.RoomRecord) error {
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return s.exec(ctx, `
		INSERT INTO rooms (room_id, width, height, red_score, blue_score, match_time, phase, is_playing, players, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			red_score = excluded.red_score,
			blue_score = excluded.blue_score,
			match_time = excluded.match_time,
			phase = excluded.phase,
			is_playing = excluded.is_playing,
			players = excluded.players,
			updated_at = excluded.updated_at`,
		rec.RoomID, rec.Width, rec.Height, rec.RedScore, rec.BlueScore, rec.MatchTime,
		string(rec.Phase), rec.IsPlaying, rec.Players, updated.UTC(),
	)
}

// LoadRoomState 加载房间状态
func (s *SQLStore) LoadRoomState(ctx context.Context, roomID string) (*models.RoomRecord, error) {
	var rec models.RoomRecord
	var phase string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT room_id, width, height, red_score, blue_score, match_time, phase, is_playing, players, updated_at
		FROM rooms WHERE room_id = ?`), roomID,
	).Scan(&rec.RoomID, &rec.Width, &rec.Height, &rec.RedScore, &rec.BlueScore, &rec.MatchTime,
		&phase, &rec.IsPlaying, &rec.Players, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Phase = models.Phase(phase)
	return &rec, nil
}

func (s *SQLStore) SavePlayer(ctx context.Context, rec models.PlayerRecord) error {
	return s.exec(ctx, `
		INSERT INTO room_players (socket_id, room_id, x, y, team, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (socket_id) DO UPDATE SET
			room_id = excluded.room_id,
			x = excluded.x,
			y = excluded.y,
			team = excluded.team,
			updated_at = excluded.updated_at`,
		rec.SocketID, rec.RoomID, rec.X, rec.Y, string(rec.Team), time.Now().UTC(),
	)
}

func (s *SQLStore) DeletePlayer(ctx context.Context, socketID string) error {
	return s.exec(ctx, `DELETE FROM room_players WHERE socket_id = ?`, socketID)
}

// ListPlayers returns the mirrored players of a room.
func (s *SQLStore) ListPlayers(ctx context.Context, roomID string) ([]models.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT socket_id, room_id, x, y, team FROM room_players
		WHERE room_id = ? ORDER BY socket_id`), roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PlayerRecord
	for rows.Next() {
		var rec models.PlayerRecord
		var team string
		if err := rows.Scan(&rec.SocketID, &rec.RoomID, &rec.X, &rec.Y, &team); err != nil {
			return nil, err
		}
		rec.Team = models.Team(team)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMatchResult 保存比赛记录
func (s *SQLStore) SaveMatchResult(ctx context.Context, res *models.MatchResult) error {
	players, err := json.Marshal(res.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	return s.exec(ctx, `
		INSERT INTO match_results (room_id, red_score, blue_score, winner, duration_ms, players, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RoomID, res.Score.Red, res.Score.Blue, res.Winner,
		res.Duration.Milliseconds(), string(players), res.EndedAt.UTC(),
	)
}

// RecentResults returns the latest finished matches of a room, newest first.
func (s *SQLStore) RecentResults(ctx context.Context, roomID string, limit int) ([]models.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT room_id, red_score, blue_score, winner, duration_ms, players, ended_at
		FROM match_results WHERE room_id = ?
		ORDER BY ended_at DESC, id DESC LIMIT ?`), roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MatchResult
	for rows.Next() {
		var res models.MatchResult
		var durationMs int64
		var players string
		if err := rows.Scan(&res.RoomID, &res.Score.Red, &res.Score.Blue, &res.Winner,
			&durationMs, &players, &res.EndedAt); err != nil {
			return nil, err
		}
		res.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(players), &res.Players); err != nil {
			return nil, fmt.Errorf("decode players: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateUser(ctx context.Context, username, passHash string) (*models.User, error) {
	user := &models.User{Username: username, PassHash: passHash, CreatedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO users (username, pass_hash, created_at) VALUES (?, ?, ?) RETURNING id`),
		username, passHash, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return user, nil
}

func (s *SQLStore) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, username, pass_hash, created_at FROM users WHERE username = ?`, username)
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, username, pass_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLStore) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).Scan(&u.ID, &u.Username, &u.PassHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) AddUserStats(ctx context.Context, userID int64, delta models.StatsDelta) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO user_stats (user_id, goals_scored, goals_conceded, wins, losses, draws, matches_played, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			goals_scored = user_stats.goals_scored + excluded.goals_scored,
			goals_conceded = user_stats.goals_conceded + excluded.goals_conceded,
			wins = user_stats.wins + excluded.wins,
			losses = user_stats.losses + excluded.losses,
			draws = user_stats.draws + excluded.draws,
			matches_played = user_stats.matches_played + 1,
			updated_at = excluded.updated_at`,
		userID, delta.GoalsScored, delta.GoalsConceded, delta.Wins, delta.Losses, delta.Draws, time.Now().UTC(),
	)
}

func (s *SQLStore) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	var stats models.UserStats
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT u.id, u.username,
			COALESCE(s.goals_scored, 0), COALESCE(s.goals_conceded, 0),
			COALESCE(s.wins, 0), COALESCE(s.losses, 0), COALESCE(s.draws, 0),
			COALESCE(s.matches_played, 0)
		FROM users u LEFT JOIN user_stats s ON s.user_id = u.id
		WHERE u.id = ?`), userID,
	).Scan(&stats.UserID, &stats.Username, &stats.GoalsScored, &stats.GoalsConceded,
		&stats.Wins, &stats.Losses, &stats.Draws, &stats.MatchesPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return finishStats(&stats), nil
}

func (s *SQLStore) GetRanking(ctx context.Context, limit int) ([]models.UserStats, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT u.id, u.username, s.goals_scored, s.goals_conceded, s.wins, s.losses, s.draws, s.matches_played
		FROM user_stats s JOIN users u ON u.id = s.user_id
		WHERE s.matches_played > 0
		ORDER BY s.wins DESC, (s.goals_scored - s.goals_conceded) DESC, s.goals_scored DESC, u.id
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserStats
	for rows.Next() {
		var st models.UserStats
		if err := rows.Scan(&st.UserID, &st.Username, &st.GoalsScored, &st.GoalsConceded,
			&st.Wins, &st.Losses, &st.Draws, &st.MatchesPlayed); err != nil {
			return nil, err
		}
		out = append(out, *finishStats(&st))
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
