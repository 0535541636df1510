package http

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"categories"`
	Message string                 `json:"message,omitempty" example:"categories is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
