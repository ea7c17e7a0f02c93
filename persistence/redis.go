package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/soccerserver/models"
)

const (
	redisKeyPrefix    = "soccer"
	recentResultsSize = 50
)

// RedisMirror keeps the live view of rooms and players in Redis hashes with a
// TTL, so abandoned entries expire on their own after a crash.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror 连接 Redis
func NewRedisMirror(addr, password string, db int, ttl time.Duration) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisMirrorFromClient(client, ttl), nil
}

func NewRedisMirrorFromClient(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisMirror{client: client, ttl: ttl}
}

func roomKey(roomID string) string        { return redisKeyPrefix + ":room:" + roomID }
func roomPlayersKey(roomID string) string { return roomKey(roomID) + ":players" }
func roomResultsKey(roomID string) string { return roomKey(roomID) + ":results" }
func playerKey(socketID string) string    { return redisKeyPrefix + ":player:" + socketID }

func (r *RedisMirror) SaveRoomState(ctx context.Context, rec models.RoomRecord) error {
	key := roomKey(rec.RoomID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"width":      rec.Width,
		"height":     rec.Height,
		"red_score":  rec.RedScore,
		"blue_score": rec.BlueScore,
		"match_time": rec.MatchTime,
		"phase":      string(rec.Phase),
		"is_playing": rec.IsPlaying,
		"players":    rec.Players,
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// LoadRoomState reads a mirrored room back.
func (r *RedisMirror) LoadRoomState(ctx context.Context, roomID string) (*models.RoomRecord, error) {
	fields, err := r.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	rec := &models.RoomRecord{RoomID: roomID, Phase: models.Phase(fields["phase"])}
	rec.Width, _ = strconv.ParseFloat(fields["width"], 64)
	rec.Height, _ = strconv.ParseFloat(fields["height"], 64)
	rec.RedScore, _ = strconv.Atoi(fields["red_score"])
	rec.BlueScore, _ = strconv.Atoi(fields["blue_score"])
	rec.MatchTime, _ = strconv.Atoi(fields["match_time"])
	rec.Players, _ = strconv.Atoi(fields["players"])
	// go-redis writes bools as "1"/"0"
	rec.IsPlaying = fields["is_playing"] == "1"
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(ts, 0)
	}
	return rec, nil
}

func (r *RedisMirror) SavePlayer(ctx context.Context, rec models.PlayerRecord) error {
	key := playerKey(rec.SocketID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"room_id": rec.RoomID,
		"x":       rec.X,
		"y":       rec.Y,
		"team":    string(rec.Team),
	})
	pipe.Expire(ctx, key, r.ttl)
	pipe.SAdd(ctx, roomPlayersKey(rec.RoomID), rec.SocketID)
	pipe.Expire(ctx, roomPlayersKey(rec.RoomID), r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisMirror) DeletePlayer(ctx context.Context, socketID string) error {
	key := playerKey(socketID)
	roomID, err := r.client.HGet(ctx, key, "room_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, roomPlayersKey(roomID), socketID)
	_, err = pipe.Exec(ctx)
	return err
}

// RoomPlayers lists the mirrored socket ids of a room.
func (r *RedisMirror) RoomPlayers(ctx context.Context, roomID string) ([]string, error) {
	return r.client.SMembers(ctx, roomPlayersKey(roomID)).Result()
}

// SaveMatchResult keeps the latest results per room, newest first.
func (r *RedisMirror) SaveMatchResult(ctx context.Context, res *models.MatchResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	key := roomResultsKey(res.RoomID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, recentResultsSize-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisMirror) RecentResults(ctx context.Context, roomID string, limit int) ([]models.MatchResult, error) {
	raw, err := r.client.LRange(ctx, roomResultsKey(roomID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.MatchResult, 0, len(raw))
	for _, item := range raw {
		var res models.MatchResult
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}
