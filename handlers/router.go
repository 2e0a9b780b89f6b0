package handlers

import (
	"github.com/gin-gonic/gin"

	"pianosale/api/logger"
	"pianosale/api/middleware"
)

type RouterDeps struct {
	Sessions  *SessionHandlers
	Analytics *AnalyticsHandlers
	Bookings  *BookingHandlers
	Admin     *AdminHandlers

	Origins   []string
	JWTSecret []byte
	APIKey    string
	Log       *logger.Logger
}

// NewRouter mounts the public beacon and booking routes and the admin
// dashboard routes behind AuthRequired.
func NewRouter(d RouterDeps) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(middleware.CORSMiddleware(d.Origins))

	r.GET("/health", HealthCheck)

	api := r.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", d.Sessions.StartSession)
			sessions.POST("/:id/scroll", d.Sessions.Scroll)
			sessions.POST("/:id/exit", d.Sessions.Exit)
			sessions.POST("/:id/tick", d.Sessions.Tick)
			sessions.POST("/:id/vitals", d.Sessions.Vitals)
			sessions.DELETE("/:id", d.Sessions.EndSession)
		}

		api.POST("/track", d.Analytics.TrackEvent)
		api.POST("/bookings", d.Bookings.SubmitBooking)

		admin := api.Group("/admin")
		{
			admin.POST("/login", d.Admin.Login)
			admin.POST("/logout", d.Admin.Logout)

			protected := admin.Group("/")
			protected.Use(middleware.AuthRequired(d.JWTSecret, d.APIKey, d.Log))
			{
				protected.GET("/bookings", d.Admin.ListBookings)

				stats := protected.Group("/stats")
				{
					stats.GET("/event-counts", d.Analytics.GetEventCountsOverTime)
					stats.GET("/average-event-duration", d.Analytics.GetAverageEventDuration)
					stats.GET("/average-custom-param", d.Analytics.GetAverageCustomEventParameter)
					stats.GET("/unique-users", d.Analytics.GetUniqueUsersOverTime)
					stats.GET("/top-paths", d.Analytics.GetTopNPagePaths)
					stats.GET("/web-vitals", d.Analytics.GetWebVitalRatings)
				}
			}
		}
	}
	return r
}
