package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dosada05/padel-system/models"
)

func newFriendshipEnv(t *testing.T) (*testEnv, FriendshipService) {
	t.Helper()
	env := newTestEnv(t)
	return env, NewFriendshipService(env.store.Friendships(), env.store.Users())
}

func TestSendFriendRequest(t *testing.T) {
	env, svc := newFriendshipEnv(t)
	ctx := context.Background()
	ids := env.addUsers(t, 2)

	if _, err := svc.SendRequest(ctx, ids[0], ids[0]); !errors.Is(err, ErrCannotFriendSelf) {
		t.Fatalf("self: err = %v, want ErrCannotFriendSelf", err)
	}
	if _, err := svc.SendRequest(ctx, ids[0], "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: err = %v, want ErrUserNotFound", err)
	}

	f, err := svc.SendRequest(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if f.RequesterID != ids[0] || f.AddresseeID != ids[1] || f.Status != models.FriendshipPending {
		t.Fatalf("unexpected request %+v", f)
	}

	for _, pair := range [][2]string{{ids[0], ids[1]}, {ids[1], ids[0]}} {
		if _, err := svc.SendRequest(ctx, pair[0], pair[1]); !errors.Is(err, ErrFriendRequestPending) {
			t.Fatalf("%s -> %s: err = %v, want ErrFriendRequestPending", pair[0], pair[1], err)
		}
	}

	if _, err := svc.Accept(ctx, f.ID, ids[1]); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := svc.SendRequest(ctx, ids[1], ids[0]); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("friends: err = %v, want ErrAlreadyFriends", err)
	}
}

func TestAnswerFriendRequest(t *testing.T) {
	env, svc := newFriendshipEnv(t)
	ctx := context.Background()
	ids := env.addUsers(t, 3)

	f, _ := svc.SendRequest(ctx, ids[0], ids[1])
	if _, err := svc.Accept(ctx, f.ID, ids[0]); !errors.Is(err, ErrFriendRequestNotFound) {
		t.Fatalf("sender accept: err = %v, want ErrFriendRequestNotFound", err)
	}
	if err := svc.Reject(ctx, f.ID, ids[2]); !errors.Is(err, ErrFriendRequestNotFound) {
		t.Fatalf("outsider reject: err = %v, want ErrFriendRequestNotFound", err)
	}
	if err := svc.Reject(ctx, "missing", ids[1]); !errors.Is(err, ErrFriendRequestNotFound) {
		t.Fatalf("missing: err = %v, want ErrFriendRequestNotFound", err)
	}

	if err := svc.Reject(ctx, f.ID, ids[1]); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Accept(ctx, f.ID, ids[1]); !errors.Is(err, ErrFriendRequestNotFound) {
		t.Fatalf("accept after reject: err = %v, want ErrFriendRequestNotFound", err)
	}
	incoming, _ := svc.ListIncoming(ctx, ids[1])
	if len(incoming) != 0 {
		t.Fatalf("rejected request still incoming: %v", incoming)
	}
}

func TestRejectedRequestCanBeResent(t *testing.T) {
	env, svc := newFriendshipEnv(t)
	ctx := context.Background()
	ids := env.addUsers(t, 2)

	f, _ := svc.SendRequest(ctx, ids[0], ids[1])
	svc.Reject(ctx, f.ID, ids[1])

	// Отклонённый адресат сам отправляет запрос: пара та же, роли меняются.
	again, err := svc.SendRequest(ctx, ids[1], ids[0])
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if again.ID != f.ID || again.RequesterID != ids[1] || again.AddresseeID != ids[0] || again.Status != models.FriendshipPending {
		t.Fatalf("unexpected reopened request %+v", again)
	}
	incoming, _ := svc.ListIncoming(ctx, ids[0])
	if len(incoming) != 1 || incoming[0].From.ID != ids[1] {
		t.Fatalf("incoming = %+v", incoming)
	}
	if incoming[0].From.PasswordHash != "" {
		t.Fatalf("password hash leaked in request sender")
	}
}

func TestRemoveFriend(t *testing.T) {
	env, svc := newFriendshipEnv(t)
	ctx := context.Background()
	ids := env.addUsers(t, 3)

	f, _ := svc.SendRequest(ctx, ids[0], ids[1])
	if err := svc.RemoveFriend(ctx, ids[0], ids[1]); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("pending: err = %v, want ErrNotFriends", err)
	}
	svc.Accept(ctx, f.ID, ids[1])
	g, _ := svc.SendRequest(ctx, ids[2], ids[0])
	svc.Accept(ctx, g.ID, ids[0])

	friends, err := svc.ListFriends(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	if len(friends) != 2 {
		t.Fatalf("friends = %d, want 2", len(friends))
	}

	if err := svc.RemoveFriend(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	if err := svc.RemoveFriend(ctx, ids[1], ids[0]); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("second remove: err = %v, want ErrNotFriends", err)
	}
	friends, _ = svc.ListFriends(ctx, ids[0])
	if len(friends) != 1 || friends[0].ID != ids[2] {
		t.Fatalf("friends after remove = %+v", friends)
	}

	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("resend after remove: %v", err)
	}
}

func TestConcurrentFriendRequestsCreateOnePair(t *testing.T) {
	env, svc := newFriendshipEnv(t)
	ctx := context.Background()
	ids := env.addUsers(t, 2)

	errs := make([]error, 6)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.SendRequest(ctx, ids[i%2], ids[(i+1)%2])
		}(i)
	}
	close(start)
	wg.Wait()

	sent := 0
	for i, err := range errs {
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrFriendRequestPending):
		default:
			t.Fatalf("sender %d: unexpected error %v", i, err)
		}
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
}
