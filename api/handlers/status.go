package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status handles GET /status and GET /health.
func Status(c *gin.Context) {
	c.JSON(http.StatusOK, success("Server is running"))
}
