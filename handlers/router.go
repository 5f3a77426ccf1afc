package handlers

import (
	"net/http"
	"time"

	"github.com/Dzmitry-Rybak/natours/middleware"
	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const jsonBodyLimit = 10 << 10

type RouterOptions struct {
	Production   bool
	CORSOrigins  []string
	RateLimitMax int
	Limiter      middleware.Limiter
	Registry     *prometheus.Registry
	PublicDir    string
	Log          *zap.Logger
}

// NewRouter wires the middleware chain and every route of the API.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := gin.New()
	r.Use(ginzap.RecoveryWithZap(log, true))
	if !opts.Production {
		r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	}
	r.Use(
		otelgin.Middleware(telemetry.ServiceName),
		middleware.NewMetrics(reg).Handler(),
		middleware.RequestTime(),
		middleware.Security(opts.Production),
		cors.New(corsConfig(opts.CORSOrigins)),
		gzip.Gzip(gzip.DefaultCompression),
		// Inside gzip so error bodies are written before the writer closes.
		ErrorHandler(log, opts.Production),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	if opts.PublicDir != "" {
		r.Static("/img", opts.PublicDir+"/img")
	}

	api := r.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter, opts.RateLimitMax, log))
	}

	// Stripe signs the raw body, keep it away from the body rewriting below.
	api.POST("/v1/bookings/webhook-checkout", h.WebhookCheckout)

	v1 := api.Group("/v1", middleware.BodyLimit(jsonBodyLimit), middleware.Sanitize())
	h.tourRoutes(v1.Group("/tours"))
	h.userRoutes(v1.Group("/users"))
	h.reviewRoutes(v1.Group("/reviews"))
	h.bookingRoutes(v1.Group("/bookings"))

	r.NoRoute(func(c *gin.Context) {
		fail(c, utils.NotFound("Can't find "+c.Request.URL.String()+" on this server!"))
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (h *Handler) tourRoutes(g *gin.RouterGroup) {
	staff := h.RestrictTo(models.RoleAdmin, models.RoleLeadGuide)

	g.GET("/top-5-cheap", AliasTopTours, h.GetAllTours())
	g.GET("/tour-stats", h.GetTourStats)
	g.GET("/monthly-plan/:year", h.Protect,
		h.RestrictTo(models.RoleAdmin, models.RoleLeadGuide, models.RoleGuide), h.GetMonthlyPlan)
	g.GET("/tours-within/:distance/center/:latlng/unit/:unit", h.GetToursWithin)
	g.GET("/distances/:latlng/unit/:unit", h.GetDistances)

	g.GET("", h.GetAllTours())
	g.POST("", h.Protect, staff, h.CreateTour())
	g.GET("/:id", h.GetTour())
	g.PATCH("/:id", h.Protect, staff, h.TourImages, h.UpdateTour())
	g.DELETE("/:id", h.Protect, staff, h.DeleteTour())

	nested := g.Group("/:id/reviews", nestedTour, h.Protect)
	nested.GET("", h.GetAllReviews())
	nested.POST("", h.RestrictTo(models.RoleUser), h.CreateReview)
}

// nestedTour exposes the tour id of /tours/:id/reviews as tourId.
func nestedTour(c *gin.Context) {
	params := make(gin.Params, 0, len(c.Params))
	for _, p := range c.Params {
		if p.Key == "id" {
			p.Key = "tourId"
		}
		params = append(params, p)
	}
	c.Params = params
	c.Next()
}

func (h *Handler) userRoutes(g *gin.RouterGroup) {
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.GET("/logout", h.Logout)
	g.POST("/forgotPassword", h.ForgotPassword)
	g.PATCH("/resetPassword/:token", h.ResetPassword)

	me := g.Group("", h.Protect)
	me.PATCH("/updateMyPassword", h.UpdatePassword)
	me.GET("/me", h.GetMe, h.GetUser())
	me.PATCH("/updateMe", h.UpdateMe)
	me.DELETE("/deleteMe", h.DeleteMe)

	admin := me.Group("", h.RestrictTo(models.RoleAdmin))
	admin.GET("", h.GetAllUsers())
	admin.POST("", h.CreateUser)
	admin.GET("/:id", h.GetUser())
	admin.PATCH("/:id", h.UpdateUser())
	admin.DELETE("/:id", h.DeleteUser())
}

func (h *Handler) reviewRoutes(g *gin.RouterGroup) {
	g.Use(h.Protect)
	g.GET("", h.GetAllReviews())
	g.POST("", h.RestrictTo(models.RoleUser), h.CreateReview)
	g.GET("/:id", h.GetReview())

	owners := h.RestrictTo(models.RoleUser, models.RoleAdmin)
	g.PATCH("/:id", owners, h.ReviewOwner, h.UpdateReview())
	g.DELETE("/:id", owners, h.ReviewOwner, h.DeleteReview())
}

func (h *Handler) bookingRoutes(g *gin.RouterGroup) {
	g.Use(h.Protect)
	g.GET("/checkout-session/:tourId", h.GetCheckoutSession)
	g.GET("/me", h.GetMyBookings)

	staff := g.Group("", h.RestrictTo(models.RoleAdmin, models.RoleLeadGuide))
	staff.GET("", h.GetAllBookings())
	staff.POST("", h.CreateBooking())
	staff.GET("/:id", h.GetBooking())
	staff.PATCH("/:id", h.UpdateBooking())
	staff.DELETE("/:id", h.DeleteBooking())
}
