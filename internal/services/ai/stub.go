package ai

import (
	"context"
	"strings"
	"unicode"

	"github.com/HammerMeetNail/levelup/internal/models"
)

// StubService is a deterministic quiz.Provider for local development and tests.
// It always asks the default question and accepts answers whose digits read 48.
type StubService struct{}

func NewStubService() *StubService {
	return &StubService{}
}

func (StubService) GenerateQuestion(ctx context.Context, userID, topicsHint string) (models.Question, error) {
	if err := ctx.Err(); err != nil {
		return models.Question{}, err
	}
	return models.DefaultQuestion, nil
}

func (StubService) GradeAnswer(ctx context.Context, userID string, question models.Question, answer string) (models.Solution, error) {
	if err := ctx.Err(); err != nil {
		return models.Solution{}, err
	}
	if strings.TrimSpace(answer) == "" {
		return models.Solution{}, ErrInvalidInput
	}
	if digitsOf(answer) == models.DefaultAnswer {
		return models.Solution{Correct: true, Response: "Correct: 40% of 120 is 0.40 × 120 = 48."}, nil
	}
	return models.Solution{Correct: false, Response: "Not quite: 40% of 120 is 0.40 × 120 = 48."}, nil
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
