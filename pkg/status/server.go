// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

// MIMECBOR selects CBOR responses when present in the Accept header.
const MIMECBOR = "application/cbor"

// Server is the read-only status API.
type Server struct {
	tracker *Tracker
	log     logger.Logger
	router  *gin.Engine
	srv     *http.Server
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(tracker *Tracker, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{tracker: tracker, log: log, router: router}
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("[%s] %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	api := router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/switches", s.getSwitches)
		api.GET("/switches/:name", s.getSwitch)
		api.GET("/drivers", s.getDrivers)
		api.GET("/rules", s.getRules)
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Infof("status API listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("status API: %v", err)
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) getStatus(c *gin.Context) {
	v := s.tracker.View()
	render(c, http.StatusOK, gin.H{
		"session":        v.Session,
		"start_time":     v.StartTime,
		"transport":      v.Transport,
		"connected":      v.Platform.Connected,
		"mqtt_connected": v.MQTTConnected,
		"ticks":          v.Platform.Ticks,
		"uptime_ns":      v.Platform.Uptime,
		"garbage_frames": v.Platform.GarbageFrames,
		"drivers":        len(v.Platform.Drivers),
		"switches":       len(v.Platform.Switches),
		"rules":          len(v.Platform.Rules),
	})
}

func (s *Server) getSwitches(c *gin.Context) {
	render(c, http.StatusOK, s.tracker.View().Platform.Switches)
}

func (s *Server) getSwitch(c *gin.Context) {
	name := c.Param("name")
	for _, sw := range s.tracker.View().Platform.Switches {
		if sw.Name == name {
			render(c, http.StatusOK, sw)
			return
		}
	}
	render(c, http.StatusNotFound, gin.H{"error": "unknown switch " + name})
}

func (s *Server) getDrivers(c *gin.Context) {
	render(c, http.StatusOK, s.tracker.View().Platform.Drivers)
}

func (s *Server) getRules(c *gin.Context) {
	render(c, http.StatusOK, s.tracker.View().Platform.Rules)
}

// render writes JSON, or CBOR when the client asks for it.
func render(c *gin.Context, code int, body interface{}) {
	if !strings.Contains(c.GetHeader("Accept"), MIMECBOR) {
		c.JSON(code, body)
		return
	}
	data, err := cbor.Marshal(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(code, MIMECBOR, data)
}
