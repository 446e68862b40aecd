package controller

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vinolens/vinolens-analyzer/utils"
)

// Healthz probes every backing dependency and reports per-dependency status.
func (ctrl *Controller) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := ctrl.Infra.Redis.Client.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if ctrl.Infra.RabbitMQ == nil || ctrl.Infra.RabbitMQ.Channel == nil || ctrl.Infra.RabbitMQ.Channel.IsClosed() {
		checks["rabbitmq"] = "channel closed"
		healthy = false
	} else {
		checks["rabbitmq"] = "ok"
	}

	if err := ctrl.Infra.Minio.Health(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	if ctrl.Infra.Postgres == nil {
		checks["postgres"] = "disabled"
	} else if sqlDB, err := ctrl.Infra.Postgres.DB.DB(); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if healthy {
		utils.JSON200(c, gin.H{"status": "ok", "checks": checks})
		return
	}
	utils.JSON503(c, gin.H{"status": "degraded", "checks": checks})
}
