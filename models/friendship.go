package models

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
	FriendshipRemoved  FriendshipStatus = "removed"
)

// Friendship - одна запись на пару пользователей, в каком бы порядке
// они ни отправляли запросы. RequesterID - кто отправил последний запрос.
type Friendship struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	AddresseeID string           `json:"addressee_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Closed reports whether the pair can be reopened by a new request.
func (f *Friendship) Closed() bool {
	return f.Status == FriendshipRejected || f.Status == FriendshipRemoved
}

// Other returns the pair member that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// FriendRequest - входящий запрос вместе с отправителем.
type FriendRequest struct {
	*Friendship
	From *User `json:"from"`
}
