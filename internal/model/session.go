package model

// Session is the locally persisted login state.
type Session struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	AccountID string `json:"accountId"`
}

// Account is what the backend returns for the authenticated token.
type Account struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Family *Family `json:"family,omitempty"`
}
