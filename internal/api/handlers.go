package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/database"
)

type handlers struct {
	deps   Dependencies
	logger zerolog.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) status(c *gin.Context) {
	equity := h.deps.RiskManager.Snapshot()
	stats := h.deps.SafetyLayer.Stats()
	c.JSON(http.StatusOK, gin.H{
		"mode":                 h.deps.Coordinator.Mode(),
		"equity":               renderEquity(equity),
		"safety_stats":         stats,
		"open_position_count":  len(h.deps.Positions.OpenRiskPositions()),
	})
}

type loginRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// login exchanges the operator's password for a bearer token. It is the
// only unprotected mutating route: everything else sits behind
// auth.Middleware once AuthManager is configured.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Operator != h.deps.OperatorName || h.deps.Passwords == nil ||
		!h.deps.Passwords.Verify(req.Password, h.deps.OperatorPasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator credentials"})
		return
	}

	token, err := h.deps.AuthManager.IssueToken(req.Operator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *handlers) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Settings.Get())
}

type settingsRequest struct {
	AutoTrading   bool    `json:"auto_trading"`
	RiskTolerance float64 `json:"risk_tolerance"`
	Symbol        string  `json:"symbol"`
}

func (h *handlers) putSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RiskTolerance < 0 || req.RiskTolerance > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "risk_tolerance must be within [0,100]"})
		return
	}

	row := database.TradeSettingsRow{
		AutoTrading: req.AutoTrading, RiskTolerance: req.RiskTolerance, CurrentSymbol: req.Symbol, UpdatedAt: time.Now(),
	}
	if err := h.deps.Settings.Update(row); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *handlers) startSentinel(c *gin.Context) {
	if err := h.deps.Coordinator.StartSentinel(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.deps.Coordinator.Mode()})
}

func (h *handlers) startInstitutional(c *gin.Context) {
	if err := h.deps.Coordinator.StartInstitutional(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.deps.Coordinator.Mode()})
}

func (h *handlers) stopAll(c *gin.Context) {
	h.deps.Coordinator.StopSentinel()
	h.deps.Coordinator.StopInstitutional()
	c.JSON(http.StatusOK, gin.H{"mode": h.deps.Coordinator.Mode()})
}

func (h *handlers) listPositions(c *gin.Context) {
	c.JSON(http.StatusOK, renderPositions(h.deps.Positions.OpenRiskPositions()))
}
