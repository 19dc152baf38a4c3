package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	q := &Question{ID: "q1", Answer: "2"}

	assert.Equal(t, StatusNotAttempted, DeriveStatus(q, ""))
	assert.Equal(t, StatusRight, DeriveStatus(q, OptionB))
	assert.Equal(t, StatusWrong, DeriveStatus(q, OptionC))

	// A question with no usable answer key can never be right.
	broken := &Question{ID: "q2", Answer: "x"}
	assert.Equal(t, StatusWrong, DeriveStatus(broken, OptionA))
}

func TestNewAnswerRecord(t *testing.T) {
	q := &Question{ID: "q1", Answer: "3"}

	rec := NewAnswerRecord(q, OptionC, 42, true)
	assert.Equal(t, AnswerRecord{
		QuestionID: "q1",
		State:      StatusRight,
		Selected:   "3",
		Time:       "42",
		Bookmark:   "1",
	}, rec)

	rec = NewAnswerRecord(q, "", 0, false)
	assert.Equal(t, StatusNotAttempted, rec.State)
	assert.Empty(t, rec.Selected)
	assert.Equal(t, "0", rec.Time)
	assert.Equal(t, "0", rec.Bookmark)
}

func TestOptionKeyNumber(t *testing.T) {
	assert.Equal(t, 1, OptionA.Number())
	assert.Equal(t, 4, OptionD.Number())
	assert.Equal(t, 0, OptionKey("optionz").Number())
	assert.False(t, OptionKey("").Valid())
	assert.True(t, OptionC.Valid())
}
