package domain

// QueryRequest is a single user question. When UseFollowup is set the
// request selects a previously suggested follow-up and FollowupText carries
// its text; the effective query is derived from it instead of Question.
type QueryRequest struct {
	Question     string `json:"question"`
	UseFollowup  bool   `json:"use_followup,omitempty"`
	FollowupText string `json:"followup_text,omitempty"`
}

// Reply is the answer to a query. Followup is empty when no follow-up
// suggestion exists; transports must render that as absent, not "".
type Reply struct {
	Answer    string `json:"answer"`
	Followup  string `json:"followup,omitempty"`
	FromCache bool   `json:"-"`
}
