package upstream

import (
	"strconv"
	"strings"

	"github.com/neetly/session-backend/internal/model"
)

// The legacy endpoint has no fixed response schema: the same concept arrives
// under different field names depending on the PHP code path. All duck typing
// lives here, behind one normalization function per response type; callers
// only ever see models. Normalizers never fail — when nothing matches they
// return an explicit empty result.

// normalizeQuestionSet flattens the question action's payload. Accepted
// shapes, first non-empty wins: a bare array of question objects, an object
// with a `questions` array, an object with a `question` array. A bare
// question object is wrapped into a one-element list.
func normalizeQuestionSet(raw interface{}) *QuestionSet {
	set := &QuestionSet{}

	items := asSlice(raw)
	first := map[string]interface{}{}
	if len(items) > 0 {
		if m, ok := items[0].(map[string]interface{}); ok {
			first = m
		}
	} else if m, ok := raw.(map[string]interface{}); ok {
		first = m
	}

	var candidates []interface{}
	if qs := asSlice(first["questions"]); len(qs) > 0 {
		candidates = qs
	} else if qs := asSlice(first["question"]); len(qs) > 0 {
		candidates = qs
	} else if len(items) > 0 {
		// The whole payload is the question list.
		candidates = items
	} else if len(first) > 0 {
		// A single question arrives as a bare object.
		candidates = []interface{}{first}
	}

	for _, item := range candidates {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		q := normalizeQuestion(m)
		if q.ID == "" {
			continue
		}
		set.Questions = append(set.Questions, q)
	}

	set.SubjectName = firstString(first, "subjectname", "subject", "test_name", "name")
	set.SubjectYear = firstString(first, "subjectyear", "year")

	// Subject metadata sometimes lives on the questions instead.
	if set.SubjectName == "" && len(candidates) > 0 {
		if m, ok := candidates[0].(map[string]interface{}); ok {
			set.SubjectName = firstString(m, "subject_name", "subject")
		}
	}

	return set
}

func normalizeQuestion(m map[string]interface{}) model.Question {
	return model.Question{
		ID:       firstString(m, "id", "question_id"),
		Text:     firstString(m, "question", "question_text", "text"),
		OptionA:  stringValue(m["optiona"]),
		OptionB:  stringValue(m["optionb"]),
		OptionC:  stringValue(m["optionc"]),
		OptionD:  stringValue(m["optiond"]),
		Answer:   stringValue(m["answer"]),
		Solution: stringValue(m["solution"]),
	}
}

// normalizeReportReasons flattens the get_report_masters payload into the
// reason list. Unknown entries are skipped.
func normalizeReportReasons(raw interface{}) []model.ReportReason {
	var reasons []model.ReportReason
	for _, item := range asSlice(raw) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		r := model.ReportReason{
			ID:   stringValue(m["id"]),
			Name: stringValue(m["rname"]),
		}
		if r.ID == "" {
			continue
		}
		reasons = append(reasons, r)
	}
	return reasons
}

// normalizeScorecardURL extracts the results pointer from the submit_answer
// response: an array whose first element carries scorecard_url. A bare
// object is tolerated too.
func normalizeScorecardURL(raw interface{}) string {
	if items := asSlice(raw); len(items) > 0 {
		if m, ok := items[0].(map[string]interface{}); ok {
			return stringValue(m["scorecard_url"])
		}
		return ""
	}
	if m, ok := raw.(map[string]interface{}); ok {
		return stringValue(m["scorecard_url"])
	}
	return ""
}

// asSlice returns v as a slice, or nil if it is not one.
func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

// firstString returns the first named field with a non-empty string value.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringValue coerces a decoded JSON scalar into a string. Numbers come out
// of encoding/json as float64; integral values are rendered without a
// fraction so numeric ids compare cleanly.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
