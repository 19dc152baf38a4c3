package model

// CreateSessionRequest starts a new attempt. test_time is in minutes and
// zero means untimed.
type CreateSessionRequest struct {
	TestID   string `json:"test_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	TestName string `json:"test_name"`
	TestTime int    `json:"test_time" binding:"gte=0"`
	IsLive   bool   `json:"is_live"`
}

// GotoRequest jumps to a question by zero-based index.
type GotoRequest struct {
	Index *int `json:"index" binding:"required,gte=0"`
}

// AnswerRequest selects an option for a question.
type AnswerRequest struct {
	QuestionID string `json:"ques_id" binding:"required"`
	Option     string `json:"option" binding:"required,oneof=optiona optionb optionc optiond"`
}

// QuestionRef names a question for flag/bookmark toggles.
type QuestionRef struct {
	QuestionID string `json:"ques_id" binding:"required"`
}

// ViolationRequest reports a lockdown rule breach from the client.
type ViolationRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Detail string `json:"detail"`
}

// ReportRequest files a question bug report, forwarded upstream as-is.
type ReportRequest struct {
	QuestionID string `json:"ques_id" binding:"required"`
	ReasonID   string `json:"rmid" binding:"required"`
	Reason     string `json:"reason"`
	UserName   string `json:"name"`
	UserMobile string `json:"mobile"`
	BookTitle  string `json:"book_title"`
	AuthorName string `json:"author_name"`
	Publisher  string `json:"publisher_name"`
	PubYear    string `json:"year_of_publication"`
	EditionNo  string `json:"edition_no"`
	PageNo     string `json:"page_no"`
}
