package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for bad email/password or unusable tickets.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTicketNotUsable is returned when a hall ticket cannot start an exam.
	ErrTicketNotUsable = errors.New("hall ticket is not usable")
)

// TokenType distinguishes student exam tokens from admin tokens.
const (
	TokenTypeStudent = "student"
	TokenTypeAdmin   = "admin"
)

// Claims is the JWT claim set issued by this service.
type Claims struct {
	UserID       int    `json:"user_id"`
	TokenType    string `json:"token_type"`
	HallTicketID string `json:"hall_ticket_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthService issues and validates tokens for students and admins.
// Students authenticate with a hall ticket QR token, admins with
// email and password. A Redis-backed JTI registry enforces a single
// active device per student.
type AuthService struct {
	tickets  HallTicketStore
	students StudentStore
	admins   *repository.AdminRepository
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

func NewAuthService(
	tickets HallTicketStore,
	students StudentStore,
	admins *repository.AdminRepository,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		tickets:  tickets,
		students: students,
		admins:   admins,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// StudentLoginResult bundles the issued token with the ticket and student
// so the client can render the exam lobby without extra round trips.
type StudentLoginResult struct {
	Token      string            `json:"token"`
	Student    *model.Student    `json:"student"`
	HallTicket *model.HallTicket `json:"hall_ticket"`
}

// HallTicketLogin authenticates a student by their hall ticket QR token.
// The ticket must be within its validity window and not yet consumed.
func (s *AuthService) HallTicketLogin(ctx context.Context, ticketToken string) (*StudentLoginResult, error) {
	ticket, err := s.tickets.GetByToken(ctx, ticketToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("fetching hall ticket: %w", err)
	}

	now := time.Now()
	if ticket.Status != model.HallTicketStatusActive || now.Before(ticket.ValidFrom) || now.After(ticket.ValidUntil) {
		return nil, ErrTicketNotUsable
	}

	// First scan verifies the ticket; session creation requires it.
	if !ticket.IsVerified {
		if err := s.tickets.MarkVerified(ctx, ticket.ID); err != nil {
			return nil, fmt.Errorf("verifying hall ticket: %w", err)
		}
		ticket.IsVerified = true
	}

	student, err := s.students.GetByID(ctx, ticket.StudentID)
	if err != nil {
		return nil, fmt.Errorf("fetching student: %w", err)
	}

	token, jti, err := s.generateToken(student.ID, TokenTypeStudent, ticket.ID.String())
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	// Register this device as the only active session for the student.
	// A later login overwrites the JTI and invalidates earlier tokens.
	key := config.CacheKey.StudentLoginKey(student.ID)
	if err := s.rdb.Set(ctx, key, jti, s.cfg.JWTExpiry).Err(); err != nil {
		return nil, fmt.Errorf("registering device session: %w", err)
	}

	s.log.Info().
		Int("student_id", student.ID).
		Str("hall_ticket_id", ticket.ID.String()).
		Msg("student logged in with hall ticket")

	return &StudentLoginResult{Token: token, Student: student, HallTicket: ticket}, nil
}

// AdminLoginResult bundles the issued token with the admin profile.
type AdminLoginResult struct {
	Token string       `json:"token"`
	Admin *model.Admin `json:"admin"`
}

// AdminLogin authenticates an administrator by email and password.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*AdminLoginResult, error) {
	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("fetching admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, _, err := s.generateToken(admin.ID, TokenTypeAdmin, "")
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	s.log.Info().Int("admin_id", admin.ID).Msg("admin logged in")

	return &AdminLoginResult{Token: token, Admin: admin}, nil
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// IsActiveDevice reports whether the given student token is still the
// registered device for its student. Admin tokens are always active.
func (s *AuthService) IsActiveDevice(ctx context.Context, claims *Claims) (bool, error) {
	if claims.TokenType != TokenTypeStudent {
		return true, nil
	}
	jti, err := s.rdb.Get(ctx, config.CacheKey.StudentLoginKey(claims.UserID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("checking device session: %w", err)
	}
	return jti == claims.ID, nil
}

func (s *AuthService) generateToken(userID int, tokenType, hallTicketID string) (string, string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		UserID:       userID,
		TokenType:    tokenType,
		HallTicketID: hallTicketID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}
