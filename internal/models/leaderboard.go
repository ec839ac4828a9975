package models

type LeaderboardEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	XP       int64  `json:"xp"`
	IconURL  string `json:"icon_url"`
}
