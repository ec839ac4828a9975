package models

import (
	"time"
)

type Question struct {
	Question    string `json:"question"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Solution struct {
	Correct  bool   `json:"correct"`
	Response string `json:"response"`
}

// DefaultQuestion is served when question generation fails.
var DefaultQuestion = Question{
	Question:    "What is 40% of 120?",
	Title:       "Calculating Percentages",
	Description: "This question tests your ability to calculate percentages. To find 40% of a number, convert the percentage to a decimal by dividing it by 100, so 40% becomes 0.40, then multiply it by the total, which is 120 here.",
}

// DefaultAnswer is the answer to DefaultQuestion.
const DefaultAnswer = "48"

// FailedGradingMessage is shown when every grading attempt failed.
const FailedGradingMessage = "Sorry, we couldn't mark your answer this time. Please try the next question."

type QuizStatus string

const (
	QuizIdle    QuizStatus = "idle"
	QuizPlaying QuizStatus = "playing"
	QuizGrading QuizStatus = "grading"
	QuizGraded  QuizStatus = "graded"
	QuizEnded   QuizStatus = "ended"
)

// QuizState is a point-in-time copy of a quiz session.
type QuizState struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Status       QuizStatus `json:"status"`
	Question     Question   `json:"question"`
	Answer       string     `json:"answer,omitempty"`
	Solution     *Solution  `json:"solution,omitempty"`
	Remaining    int        `json:"remaining_seconds"`
	Score        int64      `json:"score"`
	PriorXP      int64      `json:"prior_xp"`
	FinalXP      int64      `json:"final_xp,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Persisted    bool       `json:"persisted"`
	PersistError string     `json:"persist_error,omitempty"`
}
