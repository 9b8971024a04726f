package core

import "github.com/gin-gonic/gin"

// renderError answers from gin middleware (outside any chain) with the error
// page for status.
func renderError(c *gin.Context, renderer Renderer, status int) {
	renderer.Render(c, status, errorTemplate, errorData(status))
}
