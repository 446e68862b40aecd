package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/vinolens/vinolens-analyzer/http/controller"
	middlewares "github.com/vinolens/vinolens-analyzer/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)
	r.Use(middles.RequestIDMiddleware)

	r.GET("/healthz", ctrl.Healthz)

	apiRoutes := r.Group("/api/v1")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		scanRoutes := apiRoutes.Group("/scans")
		{
			scanRoutes.POST("", ctrl.SubmitScan)
			scanRoutes.GET("/:job_id", ctrl.GetScanStatus)
		}

		apiRoutes.GET("/history", ctrl.ListScanHistory)
	}
	return r
}
