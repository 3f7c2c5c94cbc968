package routes

import (
	"net/http"

	"rewards-service/controllers"
	"rewards-service/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, jwtSecret string, wc *controllers.WebhookController, lc *controllers.LoyaltyController, oc *controllers.OrderController) {
	// Processor webhook (signature-verified, no bearer auth)
	r.POST("/stripe/webhook", wc.StripeWebhook)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	loyalty := r.Group("/loyalty")
	loyalty.Use(middleware.AuthMiddleware(jwtSecret))
	loyalty.POST("/accounts", lc.CreateAccount)
	loyalty.GET("/accounts", lc.AccountByOwner)
	loyalty.GET("/accounts/:id", lc.GetAccount)
	loyalty.POST("/accounts/:id/award", lc.Award)
	loyalty.POST("/accounts/:id/redeem", lc.Redeem)
	loyalty.GET("/accounts/:id/ledger", lc.Ledger)
	loyalty.GET("/accounts/:id/ledger/verify", lc.VerifyLedger)

	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware(jwtSecret))
	orders.GET("", oc.LookupOrder)
	orders.GET("/:id", oc.GetOrder)
	orders.GET("/:id/transactions", oc.ListTransactions)
	orders.POST("/:id/status", middleware.RequireStaff(), oc.TransitionStatus)
}
