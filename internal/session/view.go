package session

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/neetly/session-backend/internal/model"
)

// QuestionView is the client-facing shape of a question. The correct
// answer and the solution text never leave the server while the attempt
// is running.
type QuestionView struct {
	ID      string `json:"id"`
	Text    string `json:"question"`
	OptionA string `json:"optiona"`
	OptionB string `json:"optionb"`
	OptionC string `json:"optionc"`
	OptionD string `json:"optiond"`
}

// ReviewItem is one question of the post-completion review screen: the
// full question, the submitted record, the correct option and the
// solution text. Only rendered once the attempt is completed, so the
// answer key reaches the client strictly after submission.
type ReviewItem struct {
	ID          string       `json:"id"`
	Text        string       `json:"question"`
	OptionA     string       `json:"optiona"`
	OptionB     string       `json:"optionb"`
	OptionC     string       `json:"optionc"`
	OptionD     string       `json:"optiond"`
	Status      model.Status `json:"status"`
	Selected    string       `json:"selected,omitempty"` // 1-based numeric string
	Correct     string       `json:"correct,omitempty"`  // 1-based numeric string
	CorrectText string       `json:"correct_text,omitempty"`
	Solution    string       `json:"solution,omitempty"`
	TimeSeconds int64        `json:"time_seconds"`
	Bookmarked  bool         `json:"bookmarked"`
}

// Progress summarizes answering progress for palette badges.
type Progress struct {
	Answered  int `json:"answered"`
	Flagged   int `json:"flagged"`
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// View is the full client-facing session state.
type View struct {
	ID             string                     `json:"id"`
	State          State                      `json:"state"`
	Test           model.TestInfo             `json:"test"`
	Started        bool                       `json:"started"`
	Index          int                        `json:"index"`
	Current        *QuestionView              `json:"current,omitempty"`
	Questions      []QuestionView             `json:"questions,omitempty"`
	Answers        map[string]model.OptionKey `json:"answers"`
	Flagged        []string                   `json:"flagged"`
	Bookmarked     []string                   `json:"bookmarked"`
	Progress       Progress                   `json:"progress"`
	Remaining      int64                      `json:"remaining_seconds"`
	Display        string                     `json:"display_clock"`
	LockdownActive bool                       `json:"lockdown_active"`
	LockdownRules  []LockdownRule             `json:"lockdown_rules,omitempty"`
	ScorecardURL   string                     `json:"scorecard_url,omitempty"`
	SubmitError    string                     `json:"submit_error,omitempty"`
	Review         []ReviewItem               `json:"review,omitempty"`
}

// View renders the current state. includeQuestions controls whether the
// full question list travels along (the initial fetch) or only the
// current question (every poll after that).
func (c *Controller) View(includeQuestions bool) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		ID:             c.id.String(),
		State:          c.state,
		Test:           c.info,
		Started:        c.started,
		Index:          c.index,
		Answers:        make(map[string]model.OptionKey, len(c.answers)),
		Flagged:        sortedKeys(c.flagged),
		Bookmarked:     sortedKeys(c.bookmarked),
		Remaining:      c.remaining,
		Display:        FormatClock(c.remaining),
		LockdownActive: c.guard.Active(),
		ScorecardURL:   c.scorecardURL,
	}
	for qid, opt := range c.answers {
		v.Answers[qid] = opt
	}
	if c.guard.Active() {
		v.LockdownRules = LockdownRules
	}
	if c.submitErr != nil {
		v.SubmitError = c.submitErr.Error()
	}

	v.Progress = Progress{
		Answered:  len(c.answers),
		Flagged:   len(c.flagged),
		Remaining: len(c.questions) - len(c.answers),
		Total:     len(c.questions),
	}

	if len(c.questions) > 0 {
		cur := questionView(&c.questions[c.index])
		v.Current = &cur
	}
	if includeQuestions {
		v.Questions = make([]QuestionView, 0, len(c.questions))
		for i := range c.questions {
			v.Questions = append(v.Questions, questionView(&c.questions[i]))
		}
	}
	if c.state == StateCompleted {
		v.Review = c.reviewLocked()
	}
	return v
}

// reviewLocked folds the submitted records back onto their questions, in
// submission order.
func (c *Controller) reviewLocked() []ReviewItem {
	items := make([]ReviewItem, 0, len(c.pending))
	for _, rec := range c.pending {
		q, ok := c.byID[rec.QuestionID]
		if !ok {
			continue
		}
		item := ReviewItem{
			ID:          q.ID,
			Text:        q.Text,
			OptionA:     q.OptionA,
			OptionB:     q.OptionB,
			OptionC:     q.OptionC,
			OptionD:     q.OptionD,
			Status:      rec.State,
			Selected:    rec.Selected,
			Solution:    q.Solution,
			TimeSeconds: c.ledger[q.ID],
			Bookmarked:  rec.Bookmark == "1",
		}
		if n := q.CorrectNumber(); n > 0 {
			item.Correct = strconv.Itoa(n)
			item.CorrectText = q.Option(model.OptionKeys[n-1])
		}
		items = append(items, item)
	}
	return items
}

func questionView(q *model.Question) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Text:    q.Text,
		OptionA: q.OptionA,
		OptionB: q.OptionB,
		OptionC: q.OptionC,
		OptionD: q.OptionD,
	}
}

// LedgerSeconds returns the accumulated viewing time for one question.
func (c *Controller) LedgerSeconds(qid string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger[qid]
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FormatClock renders seconds as zero-padded "HH:MM:SS". Negative input
// clamps to zero.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
