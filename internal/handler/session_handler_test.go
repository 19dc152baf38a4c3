package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neetly/session-backend/internal/auth"
	"github.com/neetly/session-backend/internal/config"
	"github.com/neetly/session-backend/internal/handler"
	"github.com/neetly/session-backend/internal/router"
	"github.com/neetly/session-backend/internal/session"
	"github.com/neetly/session-backend/internal/upstream"
	"github.com/neetly/session-backend/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope mirrors the response package wire format for assertions.
type envelope struct {
	Data  map[string]json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type testEnv struct {
	router  http.Handler
	manager *session.Manager
}

// newTestEnv builds the full HTTP stack against a fake legacy endpoint.
// Redis points at a closed port: everything that touches it is best-effort.
func newTestEnv(t *testing.T, legacy http.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	srv := httptest.NewServer(legacy)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		GinMode:   gin.TestMode,
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})

	up := upstream.NewClient(srv.URL, &http.Client{Timeout: 5 * time.Second}, zerolog.Nop())
	manager := session.NewManager(up, session.NopSink{}, time.Hour, zerolog.Nop())
	tokens := auth.NewService(cfg, rdb)

	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(manager, tokens, up, rdb, zerolog.Nop()),
		WS:      handler.NewWSHandler(manager, zerolog.Nop(), nil),
	}

	return &testEnv{
		router:  router.SetupRouter(tokens, handlers, cfg),
		manager: manager,
	}
}

// defaultLegacy answers every action the handlers exercise.
func defaultLegacy(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	switch r.PostForm.Get("action") {
	case "question":
		_, _ = w.Write([]byte(`[{"questions":[
			{"id":"q1","question":"Q1","optiona":"a","optionb":"b","optionc":"c","optiond":"d","answer":"1","solution":"Sol 1"},
			{"id":"q2","question":"Q2","optiona":"a","optionb":"b","optionc":"c","optiond":"d","answer":"2","solution":"Sol 2"}
		],"subjectname":"Physics"}]`))
	case "submit_answer":
		_, _ = w.Write([]byte(`[{"scorecard_url":"https://neetly.in/scorecard/77"}]`))
	case "get_report_masters":
		_, _ = w.Write([]byte(`[{"id":"1","rname":"Wrong answer"}]`))
	case "report_question_detail":
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func (e *testEnv) createSession(t *testing.T) (token string, sessionID string) {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/sessions", "",
		`{"test_id":"77","user_id":"501","test_name":"Mock 1","test_time":30}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, json.Unmarshal(env.Data["token"], &token))

	var view struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data["session"], &view))
	return token, view.ID
}

func TestCreateSessionReturnsQuestionsAndToken(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions", "",
		`{"test_id":"77","user_id":"501","test_time":30}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view struct {
		State     string `json:"state"`
		Questions []struct {
			ID     string `json:"id"`
			Answer string `json:"answer"`
		} `json:"questions"`
		Display       string   `json:"display_clock"`
		LockdownRules []string `json:"lockdown_rules"`
	}
	require.NoError(t, json.Unmarshal(body.Data["session"], &view))

	assert.Equal(t, "ready", view.State)
	require.Len(t, view.Questions, 2)
	// The answer key must not leak to clients.
	assert.Empty(t, view.Questions[0].Answer)
	assert.Equal(t, "00:30:00", view.Display)
	assert.NotEmpty(t, view.LockdownRules)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions", "", `{"test_id":"77"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "user_id")
}

func TestCreateSessionUpstreamDown(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions", "",
		`{"test_id":"77","user_id":"501"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "LOAD_FAILED", body.Error.Code)
}

func TestSessionEndpointsRequireToken(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	_, id := env.createSession(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/sessions/"+id, "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenIsBoundToItsSession(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	tokenA, _ := env.createSession(t)
	_, idB := env.createSession(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/sessions/"+idB, tokenA, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestAnswerFlagAndSubmitFlow(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)
	base := "/api/v1/sessions/" + id

	rec, body := env.do(t, http.MethodPost, base+"/answer", token,
		`{"ques_id":"q1","option":"optiona"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view struct {
		State    string                 `json:"state"`
		Answers  map[string]string      `json:"answers"`
		Progress map[string]interface{} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(body.Data["session"], &view))
	assert.Equal(t, "in_progress", view.State)
	assert.Equal(t, "optiona", view.Answers["q1"])

	rec, _ = env.do(t, http.MethodPost, base+"/flag", token, `{"ques_id":"q2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/next", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodPost, base+"/submit", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		ScorecardURL string `json:"scorecard_url"`
	}
	require.NoError(t, json.Unmarshal(body.Data["result"], &result))
	assert.Equal(t, "https://neetly.in/scorecard/77", result.ScorecardURL)

	// A second submit is a conflict.
	rec, body = env.do(t, http.MethodPost, base+"/submit", token, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "SESSION_COMPLETED", body.Error.Code)

	// The completed session exposes the review: correct option, solution
	// text and per-question time.
	rec, body = env.do(t, http.MethodGet, base, token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var completed struct {
		State  string `json:"state"`
		Review []struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			Selected    string `json:"selected"`
			Correct     string `json:"correct"`
			CorrectText string `json:"correct_text"`
			Solution    string `json:"solution"`
		} `json:"review"`
	}
	require.NoError(t, json.Unmarshal(body.Data["session"], &completed))
	assert.Equal(t, "completed", completed.State)
	require.Len(t, completed.Review, 2)
	assert.Equal(t, "q1", completed.Review[0].ID)
	assert.Equal(t, "right", completed.Review[0].Status)
	assert.Equal(t, "1", completed.Review[0].Selected)
	assert.Equal(t, "1", completed.Review[0].Correct)
	assert.Equal(t, "a", completed.Review[0].CorrectText)
	assert.Equal(t, "Sol 1", completed.Review[0].Solution)
	assert.Equal(t, "not_attempt", completed.Review[1].Status)
	assert.Equal(t, "Sol 2", completed.Review[1].Solution)
}

func TestAnswerRejectsBadOption(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/answer", token,
		`{"ques_id":"q1","option":"optionz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestAnswerUnknownQuestion(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/answer", token,
		`{"ques_id":"q99","option":"optiona"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNKNOWN_QUESTION", body.Error.Code)
}

func TestViolationIsRecordedWhileActive(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/violation", token,
		`{"kind":"tab_blur","detail":"window blurred"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var recorded bool
	require.NoError(t, json.Unmarshal(body.Data["recorded"], &recorded))
	assert.True(t, recorded)
}

func TestReportForwardsUpstream(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/report", token,
		`{"ques_id":"q1","rmid":"1","reason":"typo in option b"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportReasonsPassthrough(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/report-reasons", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reasons []struct {
		ID   string `json:"id"`
		Name string `json:"rname"`
	}
	require.NoError(t, json.Unmarshal(body.Data["reasons"], &reasons))
	require.Len(t, reasons, 1)
	assert.Equal(t, "Wrong answer", reasons[0].Name)
}

func TestDeleteTearsDownSession(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, id := env.createSession(t)

	rec, _ := env.do(t, http.MethodDelete, "/api/v1/sessions/"+id, token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "SESSION_NOT_FOUND", body.Error.Code)
}

func TestTokenRejectedForUnknownSessionID(t *testing.T) {
	env := newTestEnv(t, defaultLegacy)
	token, _ := env.createSession(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/sessions/00000000-0000-0000-0000-000000000000", token, "")
	// Token subject differs from the path id.
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
