package models

import (
	"math/rand/v2"
	"time"
)

// DefaultIcons are the built-in avatar paths a new profile picks from.
var DefaultIcons = []string{
	"/user-icons/1.png",
	"/user-icons/2.png",
	"/user-icons/3.png",
	"/user-icons/4.png",
	"/user-icons/5.png",
	"/user-icons/6.png",
	"/user-icons/7.png",
}

// FallbackIcon is shown when a counterpart's profile or icon is missing.
const FallbackIcon = "/user-icons/1.png"

// UnknownUsername replaces the name of a counterpart whose profile is gone.
const UnknownUsername = "Unknown"

// RandomIcon returns one of DefaultIcons.
func RandomIcon() string {
	return DefaultIcons[rand.IntN(len(DefaultIcons))]
}

type Profile struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	XP        int64          `json:"xp"`
	IconURL   string         `json:"icon_url"`
	Settings  map[string]any `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StudyTopics returns settings.studyTopics as a single hint string.
func (p *Profile) StudyTopics() string {
	if p == nil || p.Settings == nil {
		return ""
	}
	switch v := p.Settings["studyTopics"].(type) {
	case string:
		return v
	case []any:
		out := ""
		for _, t := range v {
			s, ok := t.(string)
			if !ok || s == "" {
				continue
			}
			if out != "" {
				out += "; "
			}
			out += s
		}
		return out
	default:
		return ""
	}
}

// ProfileUpdate is a merge-patch: nil fields are left untouched.
type ProfileUpdate struct {
	Username *string        `json:"username,omitempty"`
	Email    *string        `json:"email,omitempty"`
	XP       *int64         `json:"xp,omitempty"`
	IconURL  *string        `json:"icon_url,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.XP == nil && u.IconURL == nil && u.Settings == nil
}

// UserSummary is the slice of a profile shown in search results.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IconURL  string `json:"icon_url"`
}
