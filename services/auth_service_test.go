package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterAndLogin(t *testing.T) {
	store := repositories.NewMemoryStore()
	auth := NewAuthService(store.Users(), bcrypt.MinCost)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{Name: "Ana", Email: " Ana@Example.com ", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" || user.Email != "ana@example.com" || user.PasswordHash != "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.MatchesPlayed != 0 || user.MatchesWon != 0 || user.MatchesLost != 0 {
		t.Fatalf("new user must start with zero statistics")
	}

	if _, err := auth.Register(ctx, RegisterInput{Name: "Ana 2", Email: "ana@example.com", Password: "another pass"}); !errors.Is(err, ErrEmailConflict) {
		t.Fatalf("duplicate email: err = %v", err)
	}

	logged, err := auth.Login(ctx, models.Credentials{Email: "ANA@example.com", Password: "correct horse"})
	if err != nil || logged.ID != user.ID {
		t.Fatalf("Login: %+v %v", logged, err)
	}
	if _, err := auth.Login(ctx, models.Credentials{Email: "ana@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := auth.Login(ctx, models.Credentials{Email: "nobody@example.com", Password: "whatever"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: err = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := NewAuthService(repositories.NewMemoryStore().Users(), bcrypt.MinCost)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "1234567"}, ErrPasswordTooShort},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "12345678"}, ErrValidationFailed},
		{"no name", RegisterInput{Email: "a@example.com", Password: "12345678"}, ErrValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.Register(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUserProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	players := env.addUsers(t, 4)
	m := env.fullMatch(t, players, baseTime.Add(time.Hour))
	env.store.Matches().UpdateState(ctx, m.ID, models.StatePending, models.StateInProgress)
	if _, err := env.matches.Finalize(ctx, m.ID, players[0], raw([2]string{"6", "1"}, [2]string{"6", "1"})); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	users := NewUserService(env.store.Users(), env.store.Finalized())
	profile, err := users.GetProfile(ctx, players[1])
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.User.MatchesWon != 1 || len(profile.History) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.User.PasswordHash != "" {
		t.Fatalf("profile leaks password hash")
	}

	if _, err := users.GetProfile(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: err = %v", err)
	}
	history, err := users.History(ctx, "nobody")
	if err != nil || history == nil || len(history) != 0 {
		t.Fatalf("History(nobody) = %v, %v", history, err)
	}
}
