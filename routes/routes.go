package routes

import (
	"tripdeal/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterNegotiationRoutes registers all endpoints for the negotiation engine.
func RegisterNegotiationRoutes(r *gin.Engine, h *handlers.NegotiationHandler) {
	api := r.Group("/api/negotiation")
	{
		api.POST("/session", h.StartSession)
		api.POST("/session/:sessionID/offer", h.PlaceOffer)
		api.POST("/session/:sessionID/accept", h.Accept)
		api.POST("/session/:sessionID/confirm", h.Confirm)
		api.DELETE("/session/:sessionID", h.CloseSession)
		api.GET("/session/:sessionID", h.GetSession)
	}
}

// RegisterAdminRoutes registers operational endpoints.
func RegisterAdminRoutes(r *gin.Engine, h *handlers.AdminHandler) {
	api := r.Group("/api/admin")
	{
		api.POST("/guardrails/reload", h.ReloadGuardrails)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", handlers.Health)
}

// CORSMiddleware returns the CORS policy for storefront clients.
func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cors.New(cfg)
}
