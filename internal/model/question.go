package model

import "strings"

// OptionKey identifies one of the four answer choices of a question.
// The legacy API labels them optiona..optiond.
type OptionKey string

const (
	OptionA OptionKey = "optiona"
	OptionB OptionKey = "optionb"
	OptionC OptionKey = "optionc"
	OptionD OptionKey = "optiond"
)

// OptionKeys lists all choices in display order.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// Number returns the 1-based numeric value of the option (optiona=1 ..
// optiond=4), or 0 for an unknown key.
func (k OptionKey) Number() int {
	switch k {
	case OptionA:
		return 1
	case OptionB:
		return 2
	case OptionC:
		return 3
	case OptionD:
		return 4
	}
	return 0
}

// Valid reports whether k is one of the four known option keys.
func (k OptionKey) Valid() bool {
	return k.Number() != 0
}

// Question is a single multiple-choice question as served by the upstream
// API. Immutable once fetched for a session.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"question"` // HTML-bearing body
	OptionA  string `json:"optiona"`
	OptionB  string `json:"optionb"`
	OptionC  string `json:"optionc"`
	OptionD  string `json:"optiond"`
	Answer   string `json:"answer"` // correct option, 1-based numeric string
	Solution string `json:"solution,omitempty"`
}

// Option returns the text of the given choice.
func (q *Question) Option(k OptionKey) string {
	switch k {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// CorrectNumber parses the question's answer field into its 1-based numeric
// value. Returns 0 when the field is empty or not numeric.
func (q *Question) CorrectNumber() int {
	s := strings.TrimSpace(q.Answer)
	switch s {
	case "1", "2", "3", "4":
		return int(s[0] - '0')
	}
	return 0
}

// TestInfo carries the test metadata the caller supplies when a session is
// created, plus subject metadata derived from the question payload.
type TestInfo struct {
	TestID      string `json:"test_id"`
	UserID      string `json:"user_id"`
	TestName    string `json:"test_name"`
	TimeMinutes int    `json:"test_time"`
	SubjectName string `json:"subject_name,omitempty"`
	SubjectYear string `json:"subject_year,omitempty"`
	Live        bool   `json:"live"`
}
