package dtos

import "time"

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

type QueryResponse struct {
	Response  string `json:"response"`
	Intent    string `json:"intent"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

type SchemaRefreshResponse struct {
	Database    string    `json:"database"`
	Tables      int       `json:"tables"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	DatabaseType string `json:"database_type"`
	Database     string `json:"database"`
}

type QueryLogListResponse struct {
	Logs     interface{} `json:"logs"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
