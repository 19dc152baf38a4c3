// Package upstream talks to the legacy Neetly data endpoint: a single URL
// accepting form-encoded POST bodies with an `action` discriminator field.
// Response shapes are loosely typed; normalize.go flattens them into models.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/neetly/session-backend/internal/model"
	"github.com/rs/zerolog"
)

// Action names understood by the legacy endpoint.
const (
	actionQuestion      = "question"
	actionReportMasters = "get_report_masters"
	actionSubmitAnswer  = "submit_answer"
	actionReportDetail  = "report_question_detail"
)

// Common upstream errors.
var (
	// ErrLoad covers transport failures, timeouts and malformed bodies on
	// the question fetch. Terminal for the session.
	ErrLoad = errors.New("upstream load failed")
	// ErrSubmit covers failures while posting answers. Recoverable; the
	// caller may retry the submit.
	ErrSubmit = errors.New("upstream submit failed")
	// ErrNoScorecard means the submit succeeded at the HTTP level but the
	// body carried no results pointer.
	ErrNoScorecard = errors.New("submit response missing scorecard url")
)

// Client is the HTTP client for the legacy endpoint. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client. timeout applies per request (the product
// contract is a 30 second budget on every call).
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		log:     log.With().Str("component", "upstream_client").Logger(),
	}
}

// QuestionSet is the normalized result of the question action.
type QuestionSet struct {
	Questions   []model.Question
	SubjectName string
	SubjectYear string
}

// FetchQuestions loads the ordered question set for (testID, userID).
func (c *Client) FetchQuestions(ctx context.Context, testID, userID string) (*QuestionSet, error) {
	form := url.Values{
		"action":  {actionQuestion},
		"user_id": {userID},
		"test_id": {testID},
	}

	raw, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	set := normalizeQuestionSet(raw)
	c.log.Debug().
		Str("test_id", testID).
		Int("questions", len(set.Questions)).
		Msg("Question set fetched")
	return set, nil
}

// FetchReportReasons loads the bug-report reason master list.
func (c *Client) FetchReportReasons(ctx context.Context, userID string) ([]model.ReportReason, error) {
	form := url.Values{
		"action": {actionReportMasters},
		// The legacy endpoint spells this one camel-cased.
		"userId": {userID},
	}

	raw, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("fetch report reasons: %w", err)
	}

	return normalizeReportReasons(raw), nil
}

// SubmitAnswers posts the final answer payload and returns the scorecard URL
// the caller forwards to the results step.
func (c *Client) SubmitAnswers(ctx context.Context, testID, userID string, answers []model.AnswerRecord, live bool, totalTimeSeconds int64) (string, error) {
	encoded, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("%w: encode answers: %v", ErrSubmit, err)
	}

	isLive := "0"
	if live {
		isLive = "1"
	}

	form := url.Values{
		"action":     {actionSubmitAnswer},
		"test_id":    {testID},
		"user_id":    {userID},
		"answer":     {string(encoded)},
		"is_live":    {isLive},
		"total_time": {strconv.FormatInt(totalTimeSeconds, 10)},
	}

	raw, err := c.post(ctx, form)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmit, err)
	}

	scorecard := normalizeScorecardURL(raw)
	if scorecard == "" {
		return "", ErrNoScorecard
	}
	return scorecard, nil
}

// QuestionReport is the bug-report detail forwarded as-is to the upstream
// collaborator. Image attachments are intentionally not supported.
type QuestionReport struct {
	UserID     string
	UserName   string
	UserMobile string
	TestID     string
	QuestionID string
	ReasonID   string
	Reason     string // free text, only meaningful for the "other" reason
	BookTitle  string
	AuthorName string
	Publisher  string
	PubYear    string
	EditionNo  string
	PageNo     string
}

// SubmitQuestionReport forwards a question bug report.
func (c *Client) SubmitQuestionReport(ctx context.Context, r QuestionReport) error {
	form := url.Values{
		"action":              {actionReportDetail},
		"user_id":             {r.UserID},
		"name":                {r.UserName},
		"mobile":              {r.UserMobile},
		"test_id":             {r.TestID},
		"ques_id":             {r.QuestionID},
		"rmid":                {r.ReasonID},
		"reason":              {r.Reason},
		"book_title":          {r.BookTitle},
		"author_name":         {r.AuthorName},
		"publisher_name":      {r.Publisher},
		"year_of_publication": {r.PubYear},
		"edition_no":          {r.EditionNo},
		"page_no":             {r.PageNo},
	}

	if _, err := c.post(ctx, form); err != nil {
		return fmt.Errorf("submit question report: %w", err)
	}
	return nil
}

// post sends one form-encoded request and decodes the JSON body into a
// generic value. Non-2xx statuses and undecodable bodies are errors.
func (c *Client) post(ctx context.Context, form url.Values) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("action", form.Get("action")).
			Msg("Upstream returned non-2xx")
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return raw, nil
}
