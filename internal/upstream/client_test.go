package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/neetly/session-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(form url.Values) (int, string)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())

		status, body := handler(r.PostForm)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, &http.Client{Timeout: 5 * time.Second}, zerolog.Nop())
	return client, srv
}

func TestFetchQuestionsSendsQuestionAction(t *testing.T) {
	var got url.Values
	client, _ := newTestServer(t, func(form url.Values) (int, string) {
		got = form
		return http.StatusOK, `[{"questions":[
			{"id":"11","question":"Q1","optiona":"a","optionb":"b","optionc":"c","optiond":"d","answer":"2"},
			{"id":"12","question":"Q2","optiona":"a","optionb":"b","optionc":"c","optiond":"d","answer":"4"}
		],"subjectname":"Physics","subjectyear":"2024"}]`
	})

	set, err := client.FetchQuestions(context.Background(), "77", "501")
	require.NoError(t, err)

	assert.Equal(t, "question", got.Get("action"))
	assert.Equal(t, "77", got.Get("test_id"))
	assert.Equal(t, "501", got.Get("user_id"))

	require.Len(t, set.Questions, 2)
	assert.Equal(t, "11", set.Questions[0].ID)
	assert.Equal(t, "Q2", set.Questions[1].Text)
	assert.Equal(t, "Physics", set.SubjectName)
	assert.Equal(t, "2024", set.SubjectYear)
}

func TestFetchQuestionsAcceptsBareArray(t *testing.T) {
	client, _ := newTestServer(t, func(url.Values) (int, string) {
		return http.StatusOK, `[
			{"id":101,"question":"Bare Q1","answer":2},
			{"id":102,"question":"Bare Q2","answer":"3"}
		]`
	})

	set, err := client.FetchQuestions(context.Background(), "77", "501")
	require.NoError(t, err)

	require.Len(t, set.Questions, 2)
	// Numeric ids come back as integer strings.
	assert.Equal(t, "101", set.Questions[0].ID)
	assert.Equal(t, "2", set.Questions[0].Answer)
}

func TestFetchQuestionsWrapsTransportErrors(t *testing.T) {
	client, _ := newTestServer(t, func(url.Values) (int, string) {
		return http.StatusBadGateway, `oops`
	})

	_, err := client.FetchQuestions(context.Background(), "77", "501")
	assert.ErrorIs(t, err, ErrLoad)
}

func TestFetchReportReasonsUsesCamelCaseUserID(t *testing.T) {
	var got url.Values
	client, _ := newTestServer(t, func(form url.Values) (int, string) {
		got = form
		return http.StatusOK, `[{"id":"1","rname":"Wrong answer"},{"id":"2","rname":"Typo"},{"rname":"no id"}]`
	})

	reasons, err := client.FetchReportReasons(context.Background(), "501")
	require.NoError(t, err)

	assert.Equal(t, "get_report_masters", got.Get("action"))
	assert.Equal(t, "501", got.Get("userId"))
	assert.Empty(t, got.Get("user_id"))

	require.Len(t, reasons, 2)
	assert.Equal(t, model.ReportReason{ID: "1", Name: "Wrong answer"}, reasons[0])
}

func TestSubmitAnswersEncodesPayload(t *testing.T) {
	var got url.Values
	client, _ := newTestServer(t, func(form url.Values) (int, string) {
		got = form
		return http.StatusOK, `[{"scorecard_url":"https://neetly.in/scorecard/77"}]`
	})

	answers := []model.AnswerRecord{
		{QuestionID: "11", State: model.StatusRight, Selected: "2", Time: "12", Bookmark: "0"},
		{QuestionID: "12", State: model.StatusNotAttempted, Selected: "", Time: "4", Bookmark: "1"},
	}

	scorecard, err := client.SubmitAnswers(context.Background(), "77", "501", answers, false, 137)
	require.NoError(t, err)
	assert.Equal(t, "https://neetly.in/scorecard/77", scorecard)

	assert.Equal(t, "submit_answer", got.Get("action"))
	assert.Equal(t, "77", got.Get("test_id"))
	assert.Equal(t, "501", got.Get("user_id"))
	assert.Equal(t, "0", got.Get("is_live"))
	assert.Equal(t, "137", got.Get("total_time"))

	var decoded []model.AnswerRecord
	require.NoError(t, json.Unmarshal([]byte(got.Get("answer")), &decoded))
	assert.Equal(t, answers, decoded)
}

func TestSubmitAnswersLiveFlag(t *testing.T) {
	var got url.Values
	client, _ := newTestServer(t, func(form url.Values) (int, string) {
		got = form
		return http.StatusOK, `[{"scorecard_url":"u"}]`
	})

	_, err := client.SubmitAnswers(context.Background(), "77", "501", nil, true, 0)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Get("is_live"))
}

func TestSubmitAnswersMissingScorecard(t *testing.T) {
	client, _ := newTestServer(t, func(url.Values) (int, string) {
		return http.StatusOK, `[{"status":"ok"}]`
	})

	_, err := client.SubmitAnswers(context.Background(), "77", "501", nil, false, 0)
	assert.ErrorIs(t, err, ErrNoScorecard)
}

func TestSubmitAnswersWrapsServerErrors(t *testing.T) {
	client, _ := newTestServer(t, func(url.Values) (int, string) {
		return http.StatusInternalServerError, ``
	})

	_, err := client.SubmitAnswers(context.Background(), "77", "501", nil, false, 0)
	assert.ErrorIs(t, err, ErrSubmit)
}

func TestSubmitQuestionReportForwardsFields(t *testing.T) {
	var got url.Values
	client, _ := newTestServer(t, func(form url.Values) (int, string) {
		got = form
		return http.StatusOK, `{"status":"ok"}`
	})

	err := client.SubmitQuestionReport(context.Background(), QuestionReport{
		UserID:     "501",
		UserName:   "Asha",
		UserMobile: "9999999999",
		TestID:     "77",
		QuestionID: "11",
		ReasonID:   "3",
		Reason:     "option b and c are identical",
		BookTitle:  "NCERT Physics",
		PageNo:     "142",
	})
	require.NoError(t, err)

	assert.Equal(t, "report_question_detail", got.Get("action"))
	assert.Equal(t, "11", got.Get("ques_id"))
	assert.Equal(t, "3", got.Get("rmid"))
	assert.Equal(t, "option b and c are identical", got.Get("reason"))
	assert.Equal(t, "NCERT Physics", got.Get("book_title"))
	assert.Equal(t, "142", got.Get("page_no"))
}

func TestClientHonorsContextCancellation(t *testing.T) {
	client, _ := newTestServer(t, func(url.Values) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, `[]`
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchQuestions(ctx, "77", "501")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
}
