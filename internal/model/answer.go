package model

import "strconv"

// Status classifies a question's outcome at submission time. The wire values
// match what the legacy scoring endpoint expects.
type Status string

const (
	StatusNotAttempted Status = "not_attempt"
	StatusRight        Status = "right"
	StatusWrong        Status = "wrong"
)

// AnswerRecord is one entry of the submit_answer payload. All fields are
// strings because the legacy endpoint is form/JSON typed that way.
type AnswerRecord struct {
	QuestionID string `json:"ques_id"`
	State      Status `json:"state"`
	Selected   string `json:"soption"`  // 1-based numeric string, "" if none
	Time       string `json:"time"`     // accumulated viewing seconds
	Bookmark   string `json:"bookmark"` // "1" or "0"
}

// DeriveStatus computes the outcome for a question given the selected option
// (zero value means unanswered).
func DeriveStatus(q *Question, selected OptionKey) Status {
	if selected == "" {
		return StatusNotAttempted
	}
	if selected.Number() == q.CorrectNumber() && q.CorrectNumber() != 0 {
		return StatusRight
	}
	return StatusWrong
}

// NewAnswerRecord builds the wire record for one question.
func NewAnswerRecord(q *Question, selected OptionKey, seconds int64, bookmarked bool) AnswerRecord {
	rec := AnswerRecord{
		QuestionID: q.ID,
		State:      DeriveStatus(q, selected),
		Time:       strconv.FormatInt(seconds, 10),
		Bookmark:   "0",
	}
	if selected != "" {
		rec.Selected = strconv.Itoa(selected.Number())
	}
	if bookmarked {
		rec.Bookmark = "1"
	}
	return rec
}

// ReportReason is one selectable reason in the question bug-report flow,
// as returned by the get_report_masters action.
type ReportReason struct {
	ID   string `json:"id"`
	Name string `json:"rname"`
}
