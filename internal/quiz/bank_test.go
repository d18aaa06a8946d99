package quiz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const bankFixture = `{
  "categories": [
    {
      "category": "Math",
      "difficulty_levels": {
        "1": [
          {"question": "2+2?", "true_answer": "4", "answer_1": "3", "answer_2": "5", "answer_3": "22"},
          {"question": "3*3?", "true_answer": "9", "answer_1": "6", "answer_2": "12", "answer_3": "33"}
        ],
        "2": [
          {"question": "sqrt(16)?", "true_answer": "4", "answer_1": "8", "answer_2": "2", "answer_3": "16"}
        ]
      }
    },
    {
      "category": "History",
      "difficulty_levels": {
        "1": [
          {"question": "First moon landing year?", "true_answer": "1969", "answer_1": "1959", "answer_2": "1972", "answer_3": "1965"}
        ]
      }
    }
  ]
}`

func writeBankFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBank(t *testing.T) {
	b, err := LoadBank(writeBankFile(t, bankFixture))
	require.NoError(t, err)
	require.Equal(t, []string{"History", "Math"}, b.Categories())
	require.Equal(t, 2, b.Size())

	pool, err := b.Lookup("Math", DifficultyEasy)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	require.Equal(t, "4", pool[0].CorrectAnswer)
}

func TestLoadBankErrors(t *testing.T) {
	_, err := LoadBank(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadBank(writeBankFile(t, `{"categories": []}`))
	require.Error(t, err)

	_, err = LoadBank(writeBankFile(t, `not json`))
	require.Error(t, err)
}

func TestLookupNotFound(t *testing.T) {
	b, err := LoadBank(writeBankFile(t, bankFixture))
	require.NoError(t, err)

	_, err = b.Lookup("Geography", DifficultyEasy)
	require.Equal(t, KindNotFound, KindOf(err))

	_, err = b.Lookup("History", DifficultyHard)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in      string
		want    Difficulty
		wantErr bool
	}{
		{"1", DifficultyEasy, false},
		{"2", DifficultyMedium, false},
		{"3", DifficultyHard, false},
		{"0", 0, true},
		{"4", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDifficulty(tt.in)
		if tt.wantErr {
			require.Error(t, err, "input %q", tt.in)
			require.Equal(t, KindValidation, KindOf(err))
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		require.Equal(t, tt.want, got)
	}
}
