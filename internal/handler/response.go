package handler

import "github.com/labstack/echo/v4"

// SuccessResponse is the JSON envelope for every successful endpoint.
func SuccessResponse(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse is the error envelope: a human message, a stable error
// code for the dashboard, and an optional detail string.
func ErrorResponse(c echo.Context, code int, message, errCode, detail string) error {
	resp := map[string]interface{}{
		"success": false,
		"message": message,
		"error":   errCode,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	return c.JSON(code, resp)
}
