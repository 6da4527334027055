// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eden-magar/towing-saas-sub002/internal/http/handlers"
	"github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
	"github.com/eden-magar/towing-saas-sub002/internal/storage"
)

type RouterDeps struct {
	Tows    *tow.Service
	Exec    *tow.Controller
	Cash    *cash.Service
	Pricing *pricing.Service
	Photos  storage.PhotoStore
	Log     *logrus.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Identity())

	towHandler := handlers.NewTowHandler(deps.Tows)
	api.POST("/tows", towHandler.Create)
	api.GET("/tows", towHandler.List)
	api.GET("/tows/:id", towHandler.Get)
	api.POST("/tows/:id/assign", towHandler.Assign)
	api.POST("/tows/:id/cancel", towHandler.Cancel)
	api.POST("/tows/:id/points/:pointID/skip", towHandler.SkipPoint)

	driverHandler := handlers.NewDriverHandler(deps.Tows, deps.Exec, deps.Photos)
	api.POST("/tows/:id/points/:pointID/depart", driverHandler.Depart)
	api.POST("/tows/:id/points/:pointID/arrive", driverHandler.Arrive)
	api.POST("/tows/:id/points/:pointID/complete", driverHandler.Complete)
	api.POST("/tows/:id/points/:pointID/photos", driverHandler.UploadPhoto)

	cashHandler := handlers.NewCashHandler(deps.Cash)
	api.GET("/cash/drivers/:driverID/balance", cashHandler.Balance)
	api.GET("/cash/drivers/:driverID/statement", cashHandler.Statement)
	api.POST("/cash/transfers", cashHandler.ReportTransfer)
	api.POST("/cash/transfers/:id/approve", cashHandler.Approve)
	api.POST("/cash/transfers/:id/reject", cashHandler.Reject)

	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	api.POST("/pricing/quote", pricingHandler.Quote)

	return r
}
