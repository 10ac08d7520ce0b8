package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

// Сколько раз перечитываем пару, если параллельный запрос успел её изменить.
const friendRequestAttempts = 3

type FriendshipService interface {
	SendRequest(ctx context.Context, fromID, toID string) (*models.Friendship, error)
	Accept(ctx context.Context, requestID, userID string) (*models.Friendship, error)
	Reject(ctx context.Context, requestID, userID string) error
	ListIncoming(ctx context.Context, userID string) ([]*models.FriendRequest, error)
	ListFriends(ctx context.Context, userID string) ([]*models.User, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
}

type friendshipService struct {
	friendRepo repositories.FriendshipRepository
	userRepo   repositories.UserRepository
}

func NewFriendshipService(friendRepo repositories.FriendshipRepository, userRepo repositories.UserRepository) FriendshipService {
	return &friendshipService{
		friendRepo: friendRepo,
		userRepo:   userRepo,
	}
}

// SendRequest создаёт запрос или переоткрывает отклонённую или удалённую пару.
func (s *friendshipService) SendRequest(ctx context.Context, fromID, toID string) (*models.Friendship, error) {
	if fromID == toID {
		return nil, ErrCannotFriendSelf
	}
	if _, err := s.userRepo.GetByID(ctx, toID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}

	for attempt := 0; attempt < friendRequestAttempts; attempt++ {
		existing, err := s.friendRepo.GetByPair(ctx, fromID, toID)
		switch {
		case errors.Is(err, repositories.ErrFriendshipNotFound):
			f := &models.Friendship{RequesterID: fromID, AddresseeID: toID, Status: models.FriendshipPending}
			err := s.friendRepo.Create(ctx, f)
			if err == nil {
				return f, nil
			}
			if errors.Is(err, repositories.ErrFriendshipExists) {
				continue
			}
			if errors.Is(err, repositories.ErrFriendshipUserInvalid) {
				return nil, ErrUserNotFound
			}
			return nil, storeError("create friend request", err)
		case err != nil:
			return nil, storeError("get friendship", err)
		}

		switch existing.Status {
		case models.FriendshipPending:
			return nil, ErrFriendRequestPending
		case models.FriendshipAccepted:
			return nil, ErrAlreadyFriends
		}
		reopened, err := s.friendRepo.Reopen(ctx, existing.ID, fromID, toID)
		if err != nil {
			return nil, storeError("reopen friend request", err)
		}
		if reopened {
			return s.get(ctx, existing.ID)
		}
	}
	return nil, storeError("send friend request", fmt.Errorf("pair %s/%s changed %d times", fromID, toID, friendRequestAttempts))
}

func (s *friendshipService) Accept(ctx context.Context, requestID, userID string) (*models.Friendship, error) {
	if err := s.answer(ctx, requestID, userID, models.FriendshipAccepted); err != nil {
		return nil, err
	}
	return s.get(ctx, requestID)
}

func (s *friendshipService) Reject(ctx context.Context, requestID, userID string) error {
	return s.answer(ctx, requestID, userID, models.FriendshipRejected)
}

// answer переводит pending-запрос в to. Отвечать может только адресат.
func (s *friendshipService) answer(ctx context.Context, requestID, userID string, to models.FriendshipStatus) error {
	f, err := s.get(ctx, requestID)
	if err != nil {
		return err
	}
	if f.AddresseeID != userID || f.Status != models.FriendshipPending {
		return ErrFriendRequestNotFound
	}
	ok, err := s.friendRepo.Transition(ctx, f.ID, models.FriendshipPending, to)
	if err != nil {
		return storeError("answer friend request", err)
	}
	if !ok {
		return ErrFriendRequestNotFound
	}
	return nil
}

func (s *friendshipService) ListIncoming(ctx context.Context, userID string) ([]*models.FriendRequest, error) {
	pending, err := s.friendRepo.ListIncoming(ctx, userID)
	if err != nil {
		return nil, storeError("list friend requests", err)
	}
	ids := make([]string, 0, len(pending))
	for _, f := range pending {
		ids = append(ids, f.RequesterID)
	}
	senders, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	requests := make([]*models.FriendRequest, 0, len(pending))
	for _, f := range pending {
		from, ok := senders[f.RequesterID]
		if !ok {
			continue
		}
		requests = append(requests, &models.FriendRequest{Friendship: f, From: from})
	}
	return requests, nil
}

func (s *friendshipService) ListFriends(ctx context.Context, userID string) ([]*models.User, error) {
	ids, err := s.friendRepo.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, storeError("list friends", err)
	}
	friends, err := s.userRepo.List(ctx, repositories.ListUsersFilter{IDs: ids})
	if err != nil {
		return nil, storeError("list friends", err)
	}
	for _, u := range friends {
		u.PasswordHash = ""
	}
	return friends, nil
}

func (s *friendshipService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	f, err := s.friendRepo.GetByPair(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			return ErrNotFriends
		}
		return storeError("get friendship", err)
	}
	if f.Status != models.FriendshipAccepted {
		return ErrNotFriends
	}
	ok, err := s.friendRepo.Transition(ctx, f.ID, models.FriendshipAccepted, models.FriendshipRemoved)
	if err != nil {
		return storeError("remove friend", err)
	}
	if !ok {
		return ErrNotFriends
	}
	return nil
}

func (s *friendshipService) get(ctx context.Context, id string) (*models.Friendship, error) {
	f, err := s.friendRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, storeError("get friendship", err)
	}
	return f, nil
}

func (s *friendshipService) usersByID(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users, err := s.userRepo.List(ctx, repositories.ListUsersFilter{IDs: ids})
	if err != nil {
		return nil, storeError("list users", err)
	}
	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		u.PasswordHash = ""
		byID[u.ID] = u
	}
	return byID, nil
}
