package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/haasonsaas/dpc/pkg/authority"
	"github.com/haasonsaas/dpc/pkg/health"
	"github.com/haasonsaas/dpc/pkg/lifecycle"
	"github.com/haasonsaas/dpc/pkg/mediator"
	"github.com/haasonsaas/dpc/pkg/platform"
	"github.com/haasonsaas/dpc/pkg/policy"
	"github.com/rs/zerolog"
)

// Controller adapts the controller core to HTTP. It is the only caller of
// the mediator and the only place platform callbacks enter the tracker.
type Controller struct {
	identity    admin.Identity
	evaluator   *authority.Evaluator
	tracker     *lifecycle.Tracker
	mediator    *mediator.Mediator
	activator   platform.Activator
	explanation string
	adminToken  string
	limiter     *RateLimiter
	logger      zerolog.Logger
}

func (ctl *Controller) routes(r *gin.Engine) {
	r.Use(withRequestContext(ctl.logger))

	r.GET("/v1/health", ctl.handleHealth)
	r.GET("/v1/status", ctl.handleStatus)
	r.GET("/v1/audit", ctl.handleAudit)
	r.GET("/v1/outcomes", ctl.handleOutcomes)

	authed := r.Group("/v1", requireBearer(ctl.adminToken))
	authed.POST("/events", ctl.handleEvent)
	authed.POST("/admin/activate", ctl.handleActivate)
	authed.POST("/admin/remove", ctl.handleRemove)

	commands := authed.Group("/commands", ctl.rateLimit)
	commands.POST("/lock", ctl.handleLock)
	commands.POST("/password-quality", ctl.handlePasswordQuality)
	commands.POST("/password-minimum-length", ctl.handlePasswordMinimumLength)
}

func (ctl *Controller) rateLimit(c *gin.Context) {
	if !ctl.limiter.Allow(c.ClientIP()) {
		respondError(c, http.StatusTooManyRequests, "command rate limit exceeded", ctl.logger)
		return
	}
	c.Next()
}

func (ctl *Controller) handleHealth(c *gin.Context) {
	status := health.Check(c.Request.Context(), ctl.evaluator, ctl.tracker)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"healthy": status.Healthy, "issues": status.Issues})
}

func (ctl *Controller) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, health.Check(c.Request.Context(), ctl.evaluator, ctl.tracker))
}

func (ctl *Controller) handleAudit(c *gin.Context) {
	since := 0
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "since must be a non-negative integer", ctl.logger)
			return
		}
		since = n
	}
	c.JSON(http.StatusOK, gin.H{
		"state":  ctl.tracker.CurrentState(),
		"total":  ctl.tracker.Len(),
		"events": ctl.tracker.AuditSince(since),
	})
}

func (ctl *Controller) handleOutcomes(c *gin.Context) {
	journal := ctl.mediator.Journal()
	c.JSON(http.StatusOK, gin.H{
		"total":    journal.Total(),
		"outcomes": journal.Recent(),
	})
}

func (ctl *Controller) handleEvent(c *gin.Context) {
	var req struct {
		Kind    string `json:"kind" binding:"required"`
		Package string `json:"package"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	ev, err := admin.NewEvent(req.Kind, req.Package)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	c.JSON(http.StatusOK, ctl.tracker.Ingest(ev))
}

func (ctl *Controller) handleActivate(c *gin.Context) {
	ctx := c.Request.Context()
	if err := ctl.activator.RequestAdminActivation(ctx, ctl.identity, ctl.explanation); err != nil {
		respondError(c, http.StatusBadGateway, "activation request failed: "+err.Error(), ctl.logger)
		return
	}
	c.JSON(http.StatusOK, health.Check(ctx, ctl.evaluator, ctl.tracker))
}

func (ctl *Controller) handleRemove(c *gin.Context) {
	ctx := c.Request.Context()
	err := ctl.activator.RemoveActiveAdmin(ctx, ctl.identity)
	switch {
	case errors.Is(err, platform.ErrAdminNotActive):
		c.JSON(http.StatusOK, gin.H{
			"removed": false,
			"status":  health.Check(ctx, ctl.evaluator, ctl.tracker),
		})
		return
	case err != nil:
		code := http.StatusBadGateway
		if errors.Is(err, platform.ErrOwnerAdminRemoval) {
			code = http.StatusConflict
		}
		respondError(c, code, "admin removal failed: "+err.Error(), ctl.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed": true,
		"warning": lifecycle.DisableWarning,
		"status":  health.Check(ctx, ctl.evaluator, ctl.tracker),
	})
}

func (ctl *Controller) handleLock(c *gin.Context) {
	var req struct {
		TimeoutMs *int64 `json:"timeout_ms"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
			return
		}
	}
	var hint *time.Duration
	if req.TimeoutMs != nil {
		d := time.Duration(*req.TimeoutMs) * time.Millisecond
		hint = &d
	}
	out, err := ctl.mediator.LockNow(c.Request.Context(), hint)
	ctl.respondOutcome(c, out, err)
}

func (ctl *Controller) handlePasswordQuality(c *gin.Context) {
	var req struct {
		Quality string `json:"quality" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	q, err := admin.ParsePasswordQuality(req.Quality)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	out, err := ctl.mediator.SetPasswordQuality(c.Request.Context(), q)
	ctl.respondOutcome(c, out, err)
}

func (ctl *Controller) handlePasswordMinimumLength(c *gin.Context) {
	var req struct {
		Length *int `json:"length" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	out, err := ctl.mediator.SetPasswordMinimumLength(c.Request.Context(), *req.Length)
	ctl.respondOutcome(c, out, err)
}

func (ctl *Controller) respondOutcome(c *gin.Context, out admin.Outcome, err error) {
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), ctl.logger)
		return
	}
	code := http.StatusOK
	switch out.Kind {
	case admin.OutcomeDenied:
		code = http.StatusForbidden
	case admin.OutcomeFailed:
		code = http.StatusBadGateway
	}
	logger := requestLogger(c, ctl.logger)
	logger.Info().Str("op", string(out.Op)).Str("outcome", out.Kind.String()).Msg("Command handled")
	c.JSON(code, gin.H{"outcome": out, "request_id": requestID(c)})
}

// applyPolicy runs the policy file through the mediator and logs each outcome.
func (ctl *Controller) applyPolicy(ctx context.Context, pol *policy.PasswordPolicy) {
	outcomes, err := pol.Apply(ctx, ctl.mediator)
	if err != nil {
		ctl.logger.Error().Err(err).Msg("Password policy rejected")
		return
	}
	for _, out := range outcomes {
		ctl.logger.Info().Str("op", string(out.Op)).Str("outcome", out.Kind.String()).Msg("Password policy applied")
	}
}
