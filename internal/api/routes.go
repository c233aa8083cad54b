package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/linkctl/internal/layout"
	"github.com/danmuck/linkctl/internal/protocol/frame"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type sendRequest struct {
	Mode    string `json:"mode"`
	Payload string `json:"payload"`
}

type autoRespondRequest struct {
	Enabled *bool `json:"enabled"`
}

type layoutRequest struct {
	Fields []layout.Field `json:"fields"`
}

func (s *Server) RegisterRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctl := r.Group("")
	if s.auth != nil {
		ctl.Use(requireToken(s.auth))
	}

	conn := ctl.Group("/connection")
	conn.GET("", s.getConnection)
	conn.PUT("", s.putConnection)
	conn.POST("/start", s.startConnection)
	conn.POST("/stop", s.stopConnection)
	conn.GET("/status", s.getStatus)
	conn.GET("/peers", s.getPeers)

	ctl.POST("/send", s.send)
	ctl.POST("/encode", s.encode)

	ctl.GET("/autorespond", s.getAutoRespond)
	ctl.PUT("/autorespond", s.putAutoRespond)

	ctl.GET("/display", s.getDisplay)
	ctl.DELETE("/display", s.clearDisplay)
	ctl.GET("/display/stream", s.streamDisplay)

	layouts := ctl.Group("/layouts")
	layouts.GET("", s.listLayouts)
	layouts.GET("/:name", s.getLayout)
	layouts.PUT("/:name", s.putLayout)
	layouts.DELETE("/:name", s.deleteLayout)
	layouts.POST("/:name/fields", s.addField)
	layouts.PUT("/:name/fields/:index", s.updateField)
	layouts.DELETE("/:name/fields/:index", s.deleteField)
}

func (s *Server) statusBody() gin.H {
	return gin.H{
		"status":       s.link.Status(),
		"config":       s.link.Config(),
		"listen_addr":  s.link.ListenAddr(),
		"peers":        s.link.Peers(),
		"auto_respond": s.link.AutoRespond(),
	}
}

func (s *Server) getConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.link.Config()})
}

func (s *Server) putConnection(c *gin.Context) {
	var cfg session.ConnectionConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	role, err := session.ParseRole(string(cfg.Role))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	cfg.Role = role
	if err := s.link.Configure(c.Request.Context(), cfg); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": s.link.Config()})
}

func (s *Server) startConnection(c *gin.Context) {
	if err := s.link.Start(c.Request.Context()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) stopConnection(c *gin.Context) {
	if err := s.link.Stop(c.Request.Context()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) getPeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"peers": s.link.Peers()})
}

func (s *Server) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	mode, err := frame.ParseMode(req.Mode)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	res, err := s.link.SendFrame(c.Request.Context(), mode, req.Payload)
	if err != nil {
		status := statusFor(err)
		if res.Failed > 0 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (s *Server) encode(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	mode, err := frame.ParseMode(req.Mode)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	payload, err := frame.Compose(mode, req.Payload, s.limits)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	text, h := frame.DisplayPair(payload)
	c.JSON(http.StatusOK, gin.H{"mode": mode, "hex": h, "text": text, "bytes": len(payload)})
}

func (s *Server) getAutoRespond(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": s.link.AutoRespond()})
}

func (s *Server) putAutoRespond(c *gin.Context) {
	var req autoRespondRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		writeMessage(c, http.StatusBadRequest, "body must be {\"enabled\": bool}")
		return
	}
	if err := s.link.SetAutoRespond(c.Request.Context(), *req.Enabled); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": s.link.AutoRespond()})
}

func (s *Server) getDisplay(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeMessage(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"records": s.display.Records(limit), "total": s.display.Len()})
}

func (s *Server) clearDisplay(c *gin.Context) {
	if err := s.display.Clear(); err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamDisplay pushes each new record as a server-sent event.
func (s *Server) streamDisplay(c *gin.Context) {
	records, cancel := s.display.Subscribe(64)
	defer cancel()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case rec, ok := <-records:
			if !ok {
				return false
			}
			c.SSEvent("record", rec)
			return true
		case <-ctx.Done():
			return false
		case <-s.stopping:
			return false
		}
	})
}

func (s *Server) listLayouts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"layouts": s.layouts.All()})
}

func (s *Server) getLayout(c *gin.Context) {
	l, err := s.layouts.Get(c.Param("name"))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) putLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	l, err := s.layouts.Save(c.Param("name"), req.Fields)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) deleteLayout(c *gin.Context) {
	if err := s.layouts.Delete(c.Param("name")); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addField(c *gin.Context) {
	var f layout.Field
	if err := c.ShouldBindJSON(&f); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	l, err := s.layouts.AddField(c.Param("name"), f)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (s *Server) updateField(c *gin.Context) {
	idx, ok := fieldIndex(c)
	if !ok {
		return
	}
	var f layout.Field
	if err := c.ShouldBindJSON(&f); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	l, err := s.layouts.UpdateField(c.Param("name"), idx, f)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) deleteField(c *gin.Context) {
	idx, ok := fieldIndex(c)
	if !ok {
		return
	}
	l, err := s.layouts.DeleteField(c.Param("name"), idx)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func fieldIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeMessage(c, http.StatusBadRequest, "field index must be an integer")
		return 0, false
	}
	return idx, true
}
