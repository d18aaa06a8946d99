package quiz

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/m3rciful/quizbot/core/logger"
	"log/slog"
)

// Difficulty is a question difficulty level from 1 (easy) to 3 (hard).
type Difficulty int

const (
	DifficultyEasy   Difficulty = 1
	DifficultyMedium Difficulty = 2
	DifficultyHard   Difficulty = 3
)

// ParseDifficulty converts a textual level into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < int(DifficultyEasy) || n > int(DifficultyHard) {
		return 0, ErrValidation(fmt.Sprintf("difficulty must be 1..3, got %q", s))
	}
	return Difficulty(n), nil
}

// Question is a single quiz question with one correct answer and three distractors.
type Question struct {
	Prompt        string `json:"question"`
	CorrectAnswer string `json:"true_answer"`
	Distractor1   string `json:"answer_1"`
	Distractor2   string `json:"answer_2"`
	Distractor3   string `json:"answer_3"`
}

// Options returns all four answer texts, correct answer first.
func (q Question) Options() [4]string {
	return [4]string{q.CorrectAnswer, q.Distractor1, q.Distractor2, q.Distractor3}
}

type bankCategory struct {
	Category         string                `json:"category"`
	DifficultyLevels map[string][]Question `json:"difficulty_levels"`
}

type bankFile struct {
	Categories []bankCategory `json:"categories"`
}

// Bank is the immutable question bank loaded at startup. Lookups are
// read-only and safe for concurrent use.
type Bank struct {
	categories []string
	pools      map[string]map[Difficulty][]Question
}

// LoadBank reads and parses the question bank from path.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var doc bankFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	b, err := newBank(doc)
	if err != nil {
		return nil, err
	}
	logger.Info(logger.Background(), "quiz.bank", "bank.loaded",
		slog.String("path", path),
		slog.Int("categories", len(b.categories)),
	)
	return b, nil
}

func newBank(doc bankFile) (*Bank, error) {
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("question bank has no categories")
	}
	b := &Bank{pools: make(map[string]map[Difficulty][]Question, len(doc.Categories))}
	for _, cat := range doc.Categories {
		if cat.Category == "" {
			return nil, fmt.Errorf("question bank category with empty name")
		}
		if _, dup := b.pools[cat.Category]; dup {
			return nil, fmt.Errorf("duplicate category %q in question bank", cat.Category)
		}
		levels := make(map[Difficulty][]Question, len(cat.DifficultyLevels))
		for raw, qs := range cat.DifficultyLevels {
			d, err := ParseDifficulty(raw)
			if err != nil {
				return nil, fmt.Errorf("category %q: bad difficulty key %q", cat.Category, raw)
			}
			if len(qs) > 0 {
				levels[d] = qs
			}
		}
		b.pools[cat.Category] = levels
		b.categories = append(b.categories, cat.Category)
	}
	sort.Strings(b.categories)
	return b, nil
}

// Categories returns category names in stable sorted order.
func (b *Bank) Categories() []string {
	out := make([]string, len(b.categories))
	copy(out, b.categories)
	return out
}

// Lookup returns the question pool for a category and difficulty.
func (b *Bank) Lookup(category string, d Difficulty) ([]Question, error) {
	levels, ok := b.pools[category]
	if !ok {
		return nil, ErrNotFound(fmt.Sprintf("unknown category %q", category))
	}
	pool, ok := levels[d]
	if !ok || len(pool) == 0 {
		return nil, ErrNotFound(fmt.Sprintf("no questions for category %q difficulty %d", category, d))
	}
	return pool, nil
}

// Size returns the number of loaded categories.
func (b *Bank) Size() int { return len(b.categories) }
