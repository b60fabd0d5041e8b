package livequest

import (
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// RenderHTML writes a templ component as an HTML response with the given
// status code. The viewer page is the only templ surface, so one helper
// covers every caller.
func RenderHTML(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}
