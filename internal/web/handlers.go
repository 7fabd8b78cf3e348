package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"meetme/internal/agenda"
	"meetme/internal/google"
	"meetme/internal/ics"
	"meetme/internal/planner"
	"meetme/internal/timeparse"
)

type rangeRequest struct {
	DateRange string `json:"daterange" binding:"required"`
	BeginTime string `json:"begin_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

type proposalRequest struct {
	Calendars []string `json:"calendars" binding:"required,min=1"`
}

type dropRequest struct {
	Drop []int `json:"drop"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) authGoogle(c *gin.Context) {
	if s.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google sign-in is not configured"})
		return
	}
	sess := s.sessions.load(c)
	sess.mu.Lock()
	sess.oauthState = uuid.NewString()
	state := sess.oauthState
	sess.mu.Unlock()

	c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline))
}

func (s *Server) oauthCallback(c *gin.Context) {
	if s.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google sign-in is not configured"})
		return
	}
	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if errParam := c.Query("error"); errParam != "" {
		s.fail(c, fmt.Errorf("%w: %s", ErrUnauthenticated, errParam))
		return
	}
	if state := c.Query("state"); state == "" || state != sess.oauthState {
		badRequest(c, errors.New("invalid oauth state"))
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, errors.New("missing authorization code"))
		return
	}

	token, err := google.TokenFromWeb(c.Request.Context(), s.oauth, code)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ErrUnauthenticated, err))
		return
	}
	sess.token = token
	sess.oauthState = ""
	s.logger.Info("Session authenticated with Google")
	c.Redirect(http.StatusFound, "/api/calendars")
}

func (s *Server) getSession(c *gin.Context) {
	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	resp := gin.H{
		"window":        sess.window,
		"daterange":     timeparse.FormatRange(sess.window),
		"authenticated": sess.token != nil,
		"has_proposal":  sess.proposal != nil,
	}
	if sess.invite != uuid.Nil {
		resp["invite"] = sess.invite
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setRange(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := timeparse.Window(req.DateRange, req.BeginTime, req.EndTime, s.location)
	if err != nil {
		badRequest(c, err)
		return
	}

	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.window = w
	sess.invite = uuid.Nil
	sess.proposal = nil
	c.JSON(http.StatusOK, gin.H{"window": w, "daterange": timeparse.FormatRange(w)})
}

func (s *Server) listCalendars(c *gin.Context) {
	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	provider, err := s.providers(c.Request.Context(), sess.token)
	if err != nil {
		s.fail(c, err)
		return
	}
	calendars, err := provider.ListCalendars(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendars": calendars})
}

func (s *Server) propose(c *gin.Context) {
	var req proposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	provider, err := s.providers(c.Request.Context(), sess.token)
	if err != nil {
		s.fail(c, err)
		return
	}
	proposal, err := s.planner.Propose(c.Request.Context(), provider, req.Calendars, sess.window)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess.proposal = proposal
	c.JSON(http.StatusOK, proposal)
}

func (s *Server) createSchedule(c *gin.Context) {
	var req dropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.proposal == nil {
		badRequest(c, errors.New("no proposal: choose calendars first"))
		return
	}
	sched, err := s.planner.Finalize(c.Request.Context(), sess.proposal, req.Drop)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess.proposal = nil
	c.JSON(http.StatusCreated, gin.H{
		"id":         sched.ID,
		"invite_url": s.inviteURL(sched.ID),
		"schedule":   sched,
	})
}

func (s *Server) getSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	sched, err := s.planner.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) exportSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	sched, err := s.planner.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Write(&buf, sched, s.now()); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="meetme-%s.ics"`, id))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (s *Server) invite(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	sched, err := s.planner.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.window = sched.Window
	sess.invite = id
	sess.proposal = nil
	c.JSON(http.StatusOK, gin.H{
		"schedule":  sched,
		"daterange": timeparse.FormatRange(sched.Window),
	})
}

func (s *Server) joinSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	var req dropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess := s.sessions.load(c)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var (
		selection *agenda.Agenda
		err       error
	)
	// The session proposal only counts when it was made for this invitation.
	if sess.proposal != nil && sess.invite == id {
		selection, err = sess.proposal.Selection(req.Drop)
	} else {
		sched, findErr := s.planner.Get(c.Request.Context(), id)
		if findErr != nil {
			s.fail(c, findErr)
			return
		}
		selection, err = planner.Selection(sched, req.Drop)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	sched, err := s.planner.Join(c.Request.Context(), id, selection)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess.proposal = nil
	c.JSON(http.StatusOK, sched)
}

func (s *Server) inviteURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/api/invite/%s", s.baseURL, id)
}

func scheduleID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return uuid.Nil, false
	}
	return id, true
}
