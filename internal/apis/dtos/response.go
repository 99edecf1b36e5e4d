package dtos

// Response is the envelope for every non-query endpoint and for all errors.
type Response struct {
	Success bool        `json:"success"`
	Error   *string     `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
