package httpjson

// ErrorMessage wraps an error in a JSON response with the given status.
func ErrorMessage(status int, err error) *Response {
	return &Response{
		Status: status,
		Body: M{
			"error": err.Error(),
		},
	}
}
