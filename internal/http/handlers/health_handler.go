package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LivenessText is the plain-text body of GET /.
const LivenessText = "Сервер работает!"

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Root godoc
// @ID          liveness
// @Summary     Liveness probe
// @Tags        Health
// @Produce     plain
// @Success     200  {string}  string  "Сервер работает!"
// @Router      / [get]
func Root(c *gin.Context) {
	c.String(http.StatusOK, LivenessText)
}

// Health godoc
// @ID          health
// @Summary     Health probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}
