package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/lifeline/internal/channel"
	"github.com/zulandar/lifeline/internal/db"
	"github.com/zulandar/lifeline/internal/metrics"
	"github.com/zulandar/lifeline/internal/models"
	"github.com/zulandar/lifeline/internal/sos"
	"gorm.io/gorm"
)

// registerRoutes sets up all routes on the gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.DB, opts.Channels))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api", identity(opts.IdentityHeader))
	api.POST("/sos", handleTrigger(opts.Service))
	api.GET("/sos", handleHistory(opts.Service))
	api.POST("/sos/:id/resolve", handleResolve(opts.Service))
	api.GET("/sos/stream", handleStream(opts.Feed))
	api.POST("/devices", handleRegisterDevice(opts.DB))
}

type triggerBody struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	UserPhone string   `json:"userPhone"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	MapsLink  string  `json:"mapsLink"`
}

type triggerResponse struct {
	Success       bool               `json:"success"`
	SOSEventID    string             `json:"sosEventId"`
	Status        models.EventStatus `json:"status"`
	TotalContacts int                `json:"totalContacts"`
	Successful    int                `json:"successful"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	Location      location           `json:"location"`
}

func handleTrigger(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body triggerBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}

		res, err := svc.Trigger(c.Request.Context(), sos.TriggerRequest{
			UserID:    c.GetString(userIDKey),
			Latitude:  *body.Latitude,
			Longitude: *body.Longitude,
			UserPhone: body.UserPhone,
		})
		if err != nil {
			writeError(c, err, "failed to send SOS")
			return
		}

		ev := res.Event
		c.JSON(http.StatusOK, triggerResponse{
			Success:       true,
			SOSEventID:    ev.ID,
			Status:        ev.Status,
			TotalContacts: ev.TotalContacts,
			Successful:    ev.Successful,
			Failed:        ev.Failed,
			Skipped:       ev.Skipped,
			Location: location{
				Latitude:  ev.Latitude,
				Longitude: ev.Longitude,
				MapsLink:  res.MapsLink,
			},
		})
	}
}

func handleHistory(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := svc.History(c.Request.Context(), c.GetString(userIDKey))
		if err != nil {
			writeError(c, err, "failed to load SOS history")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
	}
}

func handleResolve(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ev, err := svc.Resolve(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
		if err != nil {
			writeError(c, err, "failed to resolve SOS")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "event": ev})
	}
}

type deviceBody struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,oneof=android ios web"`
}

func handleRegisterDevice(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body deviceBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		token := strings.TrimSpace(body.Token)
		if token == "" {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Details: "token is required"})
			return
		}

		dev := &models.DeviceToken{UserID: c.GetString(userIDKey), Token: token, Platform: body.Platform}
		if err := db.UpsertDevice(gdb.WithContext(c.Request.Context()), dev); err != nil {
			writeError(c, err, "failed to register device")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleHealth(gdb *gorm.DB, clients []channel.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := gdb.DB(); err != nil {
			dbStatus = err.Error()
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			dbStatus = err.Error()
		}
		if dbStatus != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		report := channel.Report(clients...)
		if report == nil {
			report = []channel.Status{}
		}
		c.JSON(code, gin.H{
			"status":   status,
			"database": dbStatus,
			"channels": report,
		})
	}
}
