package serverutils

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Success bool              `json:"success"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func SuccessResponse(message string, data interface{}) *Response {
	return &Response{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string, fieldErrors map[string]string) *Response {
	return &Response{
		Success: false,
		Code:    code,
		Message: message,
		Errors:  fieldErrors,
	}
}
