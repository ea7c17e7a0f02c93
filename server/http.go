package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/persistence"
	"github.com/wfunc/soccerserver/room"
	"github.com/wfunc/soccerserver/services"
)

const qrSize = 256

type roomSummary struct {
	RoomID   string       `json:"roomId"`
	Players  int          `json:"players"`
	Capacity int          `json:"capacity"`
	Phase    models.Phase `json:"phase"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Handler 设定路由: the room directory, auth, stats and the websocket endpoint.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.recoverer(s.accessLog(h))
	}

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/rooms", wrap(s.listRooms))
	mux.HandleFunc("GET /api/rooms/available", wrap(s.availableRoom))
	mux.HandleFunc("GET /api/rooms/{roomId}", wrap(s.getRoom))
	mux.HandleFunc("GET /api/rooms/{roomId}/state", wrap(s.roomState))
	mux.HandleFunc("GET /api/rooms/{roomId}/qr", wrap(s.roomQR))

	mux.HandleFunc("POST /api/auth/register", wrap(s.register))
	mux.HandleFunc("POST /api/auth/login", wrap(s.login))
	mux.HandleFunc("GET /api/users/me/stats", wrap(s.myStats))
	mux.HandleFunc("GET /api/ranking", wrap(s.ranking))

	mux.HandleFunc("GET /healthz", wrap(s.health))
	return mux
}

func (s *GameServer) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.registry.Rooms()
	out := make([]roomSummary, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, roomSummary{RoomID: rm.ID, Players: rm.PlayerCount(), Capacity: rm.Capacity(), Phase: rm.Phase()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *GameServer) availableRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"roomId": s.registry.FindAvailable()})
}

// getRoom returns the room record, creating the room on first request.
func (s *GameServer) getRoom(w http.ResponseWriter, r *http.Request) {
	rm := s.registry.FindOrCreate(r.PathValue("roomId"))
	writeJSON(w, http.StatusOK, rm.Record())
}

func (s *GameServer) roomState(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.registry.Get(room.SanitizeRoomID(r.PathValue("roomId")))
	if !ok {
		writeError(w, http.StatusNotFound, room.ErrUnknownRoom.Error())
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

// roomQR encodes the join link of a room as a PNG.
func (s *GameServer) roomQR(w http.ResponseWriter, r *http.Request) {
	id := room.SanitizeRoomID(r.PathValue("roomId"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	png, err := qrcode.Encode(s.JoinURL(id), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// JoinURL is the link players open to join roomID.
func (s *GameServer) JoinURL(roomID string) string {
	base := strings.TrimRight(s.opts.PublicURL, "/")
	return base + "/?room=" + url.QueryEscape(roomID)
}

func (s *GameServer) register(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are disabled")
		return
	}
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *GameServer) login(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are disabled")
		return
	}
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *GameServer) myStats(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.playerService == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are disabled")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	stats, err := s.playerService.GetPlayerWithStats(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, authStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *GameServer) ranking(w http.ResponseWriter, r *http.Request) {
	if s.playerService == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.playerService.Ranking(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.UserStats{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *GameServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"rooms":    s.registry.Count(),
		"players":  s.registry.PlayerCount(),
		"sessions": s.sessionManager.Count(),
	})
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidUsername), errors.Is(err, services.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, persistence.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *GameServer) accessLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		logger.Log.Debugf("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	}
}

func (s *GameServer) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.Log.Errorf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, p, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next(w, r)
	}
}
