package api

import "github.com/google/uuid"

// IssueRequest is the JSON body for POST /v1/tokens/issue.
type IssueRequest struct {
	UserID uuid.UUID `json:"userId"`
	Key    uuid.UUID `json:"key"`
}

// IssueResponse is returned from POST /v1/tokens/issue.
type IssueResponse struct {
	AccessToken string `json:"accessToken"`
}

// ErrorResponse is the JSON error envelope for all error statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
