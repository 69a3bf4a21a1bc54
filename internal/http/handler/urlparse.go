package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/firewatch-server/pkg/avurl"
)

type URLParse struct{}

// POST("/api/url/parse", Parse)
//
// Splits a camera source URL the way the decoder will read it, so the admin
// form can show what address, port and path a custom URL resolves to.
func (h *URLParse) Parse(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := bind(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	url, err := avurl.ParseSource(req.URL)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, url)
}
