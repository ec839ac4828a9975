package models

import "time"

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusReceived RequestStatus = "received"
)

// FriendRequest is one side of a mirrored request pair, stored under OwnerID.
type FriendRequest struct {
	OwnerID    string        `json:"-"`
	FriendID   string        `json:"friend_id"`
	FriendName string        `json:"friend_name"`
	Status     RequestStatus `json:"status"`
	SentAt     time.Time     `json:"sent_at"`
	IconURL    string        `json:"icon_url"`
}

type Friendship struct {
	OwnerID  string    `json:"-"`
	FriendID string    `json:"friend_id"`
	AddedAt  time.Time `json:"added_at"`
}

type FriendSummary struct {
	FriendID string `json:"friend_id"`
	Username string `json:"username"`
	IconURL  string `json:"icon_url"`
}

// ReceivedOnly keeps the requests the owner can act on, preserving order.
func ReceivedOnly(reqs []FriendRequest) []FriendRequest {
	out := make([]FriendRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Status == RequestStatusReceived {
			out = append(out, r)
		}
	}
	return out
}

type SearchResult struct {
	UserSummary
	Relationship Relationship `json:"relationship"`
}

// ProfileView is everything the profile page of another user shows.
type ProfileView struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	XP           int64           `json:"xp"`
	IconURL      string          `json:"icon_url"`
	Rank         int             `json:"rank"`
	Relationship *Relationship   `json:"relationship,omitempty"`
	Friends      []FriendSummary `json:"friends"`
	IsSelf       bool            `json:"is_self"`
}
