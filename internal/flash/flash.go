// Package flash carries one-shot data from a form submission to the page rendered after
// the redirect.
package flash

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie holding either the flash payload or its storage key.
const CookieName = "plantdx_flash"

// Data is what the index page shows after a standard-mode submission.
type Data struct {
	ImageURL string   `json:"imageUrl,omitempty"`
	Analysis string   `json:"analysis,omitempty"`
	Error    string   `json:"error,omitempty"`
	Details  string   `json:"details,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Empty reports whether there is nothing to show.
func (d Data) Empty() bool {
	return d.ImageURL == "" && d.Analysis == "" && d.Error == "" && d.Details == "" && len(d.Errors) == 0
}

// Store keeps Data between a redirect and the next page render. Pop removes what it returns.
type Store interface {
	Put(c *gin.Context, data Data) error
	Pop(c *gin.Context) (Data, error)
}

func setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", c.Request.TLS != nil, true)
}

func clearCookie(c *gin.Context) {
	setCookie(c, "", -1)
}
