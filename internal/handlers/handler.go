package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "printer_shutdown/docs"
	"printer_shutdown/internal/logger"
	"printer_shutdown/internal/service"
)

// Options toggles optional routes.
type Options struct {
	AllowSignUp bool
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	return &Handler{services: services, log: log, opts: opts}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live WatchState stream on the same port, same operator tokens as /api/v1.
	router.GET("/ws", h.wsAuthMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		if h.opts.AllowSignUp {
			auth.POST("/sign-up", h.signUp)
		}
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerWatchRoutes(api)
		h.registerPrinterRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerWatchRoutes(api *gin.RouterGroup) {
	watch := api.Group("/watch")
	{
		watch.POST("/toggle", h.watchCommand(service.CommandToggle))
		watch.POST("/arm", h.watchCommand(service.CommandArm))
		watch.POST("/disarm", h.watchCommand(service.CommandDisarm))
		watch.GET("/state", h.getWatchState)
	}
}

func (h *Handler) registerPrinterRoutes(api *gin.RouterGroup) {
	api.GET("/printer/status", h.getPrinterStatus)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
		logs.GET("/", h.getLogs)
	}
}
