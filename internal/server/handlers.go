package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

type platformInfo struct {
	Name         platform.Name `json:"name"`
	Title        string        `json:"title"`
	Capabilities []string      `json:"capabilities"`
}

func (s *Server) listPlatforms(c *gin.Context) {
	out := make([]platformInfo, 0, len(platform.All))
	for _, n := range platform.All {
		a, err := platform.New(n, platform.Deps{})
		if err != nil {
			continue
		}
		caps := []string{}
		for _, cp := range []platform.Capabilities{platform.CapPopup, platform.CapComment, platform.CapListen} {
			if a.Capabilities().Has(cp) {
				caps = append(caps, cp.String())
			}
		}
		out = append(out, platformInfo{Name: n, Title: n.Title(), Capabilities: caps})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Accounts())
}

func (s *Server) getAccount(c *gin.Context) {
	v, err := s.ctl.Account(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) createAccount(c *gin.Context) {
	var req struct {
		ID       string `json:"id" binding:"required"`
		Name     string `json:"name"`
		Platform string `json:"platform" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := platform.ParseName(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := s.ctl.CreateAccount(c.Request.Context(), name, session.Account{ID: req.ID, Name: req.Name})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := s.ctl.RemoveAccount(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) connect(c *gin.Context) {
	var cfg session.ConnectConfig
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := s.ctl.Connect(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) disconnect(c *gin.Context) {
	if err := s.ctl.Disconnect(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) startTask(c *gin.Context) {
	var d task.Descriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := task.ParseType(string(d.Type)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ctl.StartTask(c.Request.Context(), c.Param("id"), d); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"type": d.Type})
}

func (s *Server) updateTask(c *gin.Context) {
	typ, err := task.ParseType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "пустая конфигурация"})
		return
	}

	if err := s.ctl.UpdateTask(c.Param("id"), typ, body); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) stopTask(c *gin.Context) {
	typ, err := task.ParseType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctl.StopTask(c.Param("id"), typ); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.ctl.Runs(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 50))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) listComments(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.ctl.Account(id); err != nil {
		s.fail(c, err)
		return
	}
	msgs := s.ctl.Comments(id, queryInt(c, "limit", 100))
	if msgs == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
