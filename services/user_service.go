package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"golang.org/x/sync/errgroup"
)

type UserService interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	History(ctx context.Context, userID string) ([]*models.FinalizedMatch, error)
	UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error)
	ListUsers(ctx context.Context, input ListUsersInput) ([]*models.User, error)
}

// UpdateProfileInput - nil означает "не менять". Пустой AvatarURL убирает фото.
type UpdateProfileInput struct {
	Name      *string `json:"name"`
	Level     *int    `json:"level"`
	AvatarURL *string `json:"avatar_url"`
}

// Empty reports whether no field was provided.
func (in UpdateProfileInput) Empty() bool {
	return in.Name == nil && in.Level == nil && in.AvatarURL == nil
}

type ListUsersInput struct {
	Search string
	Limit  int
	Offset int
}

const (
	DefaultUserListLimit = 50
	MaxUserListLimit     = 100
)

// Profile - пользователь со статистикой и историей завершённых матчей.
type Profile struct {
	User    *models.User             `json:"user"`
	History []*models.FinalizedMatch `json:"history"`
}

type userService struct {
	userRepo      repositories.UserRepository
	finalizedRepo repositories.FinalizedMatchRepository
}

func NewUserService(userRepo repositories.UserRepository, finalizedRepo repositories.FinalizedMatchRepository) UserService {
	return &userService{
		userRepo:      userRepo,
		finalizedRepo: finalizedRepo,
	}
}

func (s *userService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	profile := &Profile{}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := s.GetUser(gCtx, userID)
		if err != nil {
			return err
		}
		profile.User = user
		return nil
	})

	g.Go(func() error {
		history, err := s.finalizedRepo.ListByParticipant(gCtx, userID)
		if err != nil {
			return storeError("list finalized matches", err)
		}
		profile.History = history
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if profile.History == nil {
		profile.History = []*models.FinalizedMatch{}
	}
	return profile, nil
}

// History returns the user's finalized matches, oldest first.
func (s *userService) History(ctx context.Context, userID string) ([]*models.FinalizedMatch, error) {
	history, err := s.finalizedRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, storeError("list finalized matches", err)
	}
	if history == nil {
		return []*models.FinalizedMatch{}, nil
	}
	return history, nil
}

// UpdateProfile меняет только переданные поля; если ничего не изменилось, записи нет.
func (s *userService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	if input.Empty() {
		return nil, ErrNoProfileFields
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}

	changed := false
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidationFailed)
		}
		if name != user.Name {
			user.Name = name
			changed = true
		}
	}
	if input.Level != nil {
		if *input.Level < models.MinLevel || *input.Level > models.MaxLevel {
			return nil, fmt.Errorf("%w: level must be between %d and %d", ErrValidationFailed, models.MinLevel, models.MaxLevel)
		}
		if *input.Level != user.Level {
			user.Level = *input.Level
			changed = true
		}
	}
	if input.AvatarURL != nil {
		avatar := strings.TrimSpace(*input.AvatarURL)
		if avatar != "" {
			u, err := url.ParseRequestURI(avatar)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, fmt.Errorf("%w: avatar_url must be an http(s) URL", ErrValidationFailed)
			}
		}
		if avatar != user.AvatarURL {
			user.AvatarURL = avatar
			changed = true
		}
	}

	if changed {
		if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, storeError("update profile", err)
		}
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, input ListUsersInput) ([]*models.User, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultUserListLimit
	}
	if limit > MaxUserListLimit {
		limit = MaxUserListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	users, err := s.userRepo.List(ctx, repositories.ListUsersFilter{
		Search: strings.TrimSpace(input.Search),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, storeError("list users", err)
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}
