package models

import "time"

// Уровень игры: новый игрок получает MinLevel.
const (
	MinLevel = 1
	MaxLevel = 7
)

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Level         int       `json:"level"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	MatchesPlayed int       `json:"matches_played"`
	MatchesWon    int       `json:"matches_won"`
	MatchesLost   int       `json:"matches_lost"`
	CreatedAt     time.Time `json:"created_at"`
}

// StatsDelta - приращение счётчиков одного игрока за один матч.
type StatsDelta struct {
	UserID string
	Won    bool
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
