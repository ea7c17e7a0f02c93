// services/auth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/persistence"
)

const (
	minUsernameLen   = 2
	maxUsernameLen   = 16
	minPasswordLen   = 4
	loginRateWindow  = time.Minute
	maxLoginAttempts = 10
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidUsername    = fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
)

// Claims 令牌内容
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type AuthService struct {
	users      persistence.UserStore
	secret     []byte
	ttl        time.Duration
	bcryptCost int

	// 登录限流 (key -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewAuthService(users persistence.UserStore, secret string, ttl time.Duration, bcryptCost int) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcryptCost,
		rateMap:    make(map[string]*rateEntry),
	}
}

// Register 注册新用户
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("user registered: %s (%d)", user.Username, user.ID)
	return s.issue(user)
}

// Login 登录. key identifies the caller for rate limiting, usually the remote IP.
func (s *AuthService) Login(ctx context.Context, username, password, key string) (*AuthResult, error) {
	if !s.checkRate(key) {
		return nil, ErrTooManyAttempts
	}
	user, err := s.users.GetUserByName(ctx, strings.TrimSpace(username))
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// ValidateToken 校验令牌
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResult{Token: signed, UserID: user.ID, Username: user.Username}, nil
}

func (s *AuthService) checkRate(key string) bool {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	now := time.Now()
	entry, ok := s.rateMap[key]
	if !ok || now.After(entry.resetAt) {
		s.rateMap[key] = &rateEntry{count: 1, resetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.count++
	return entry.count <= maxLoginAttempts
}
