// Package apierr is the shared error envelope for the HTTP control surface
// (api/router.go, api/handler, api/middleware), split out on its own so
// middleware can build an error body without importing the api package
// that registers routes against it.
package apierr

// Detail is the machine-readable half of an error response body.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope every non-2xx JSON body uses.
type Response struct {
	Success bool    `json:"success"`
	Error   *Detail `json:"error"`
}

// New builds an error Response with the given code and message.
func New(code, message string) Response {
	return Response{Success: false, Error: &Detail{Code: code, Message: message}}
}
