package models

import "time"

// ErrorResponse is the JSON body of every reporting API error.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// VideoList is the JSON body of the list endpoints.
type VideoList struct {
	Videos []*Video `json:"videos"`
	Count  int      `json:"count"`
	Limit  int      `json:"limit"`
}
