package handlers

import (
	"net/http"

	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// @Summary      Health check
// @Description  Returns service status, environment and storage driver
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.RespHealth
// @Router       /healthz [get]
func Healthz(cfg *config.Config) gin.HandlerFunc {
	status := map[string]string{"status": "ok"}
	if cfg != nil {
		status["env"] = string(cfg.Env)
		status["storage"] = string(cfg.Storage.Driver)
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(status))
	}
}

func RegisterHealthRoutes(r gin.IRouter, cfg *config.Config) {
	r.GET("/healthz", Healthz(cfg))
}
