package client

// TryStartResponse mirrors the server's tryStartResp.
type TryStartResponse struct {
	Sample string `json:"sample"`
}

// StatusResponse mirrors the server's statusResp.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse mirrors the server's errorResp.
type ErrorResponse struct {
	Error string `json:"error"`
}
