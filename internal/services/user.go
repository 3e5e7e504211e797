package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

type NewUserInput struct {
	Name    string `json:"name" binding:"required"`
	Surname string `json:"surname" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
}

type UserService struct {
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(log *logger.Logger, userRepo repos.UserRepo) *UserService {
	return &UserService{
		log:      log.With("service", "UserService"),
		userRepo: userRepo,
	}
}

// Create registers a user. Email addresses are unique; re-registering one is
// a conflict rather than an idempotent success.
func (s *UserService) Create(ctx context.Context, input NewUserInput) (*types.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	exists, err := s.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("a user with this email already exists")
	}

	user := &types.User{
		Name:    strings.TrimSpace(input.Name),
		Surname: strings.TrimSpace(input.Surname),
		Email:   email,
	}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("User created", "user_id", user.ID.String())
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*types.User, error) {
	user, err := s.userRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}
