package core

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	errorTemplate  = "error"
	defaultErrorNo = "404"
)

// Renderer is the template collaborator.
type Renderer interface {
	Render(c *gin.Context, status int, name string, data gin.H)
}

// HTMLRenderer renders through gin's HTML renderer; templates are looked up
// as name+Ext among those loaded with LoadHTMLGlob or SetHTMLTemplate.
type HTMLRenderer struct {
	Ext string
}

func (r HTMLRenderer) Render(c *gin.Context, status int, name string, data gin.H) {
	c.HTML(status, name+r.Ext, data)
}

// RedirectTo responds with a redirect to url.
func RedirectTo(url string) View {
	return func(x *Exchange) {
		x.Redirect(url)
	}
}

// Render responds with template, given the matched params and principal.
func Render(template string) View {
	return func(x *Exchange) {
		x.Render(http.StatusOK, template, x.TemplateData())
	}
}

// AuthRender is Render behind RequireLogin.
func AuthRender(g *Gate, template string) Chain {
	return Chain{g.RequireLogin(), Render(template)}
}

// ErrorPage renders the error template for the captured err_no segment
// (404 when absent). The status follows err_no when it is a 4xx/5xx code.
var ErrorPage View = errorPage

func errorPage(x *Exchange) {
	errNo := x.Params["err_no"]
	if errNo == "" {
		errNo = defaultErrorNo
	}
	data := x.TemplateData()
	data["err_no"] = errNo
	x.Render(errorStatus(errNo), errorTemplate, data)
}

func errorStatus(errNo string) int {
	code, err := strconv.Atoi(errNo)
	if err != nil || code < 400 || code > 599 {
		return http.StatusNotFound
	}
	return code
}

func errorData(status int) gin.H {
	return gin.H{"err_no": strconv.Itoa(status)}
}
