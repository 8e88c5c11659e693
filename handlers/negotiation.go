package handlers

import (
	"errors"
	"net/http"
	"time"

	"tripdeal/models"
	"tripdeal/services/negotiation"
	"tripdeal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NegotiationHandler exposes the negotiation session engine over HTTP.
type NegotiationHandler struct {
	Service negotiation.SessionService
	Logger  *zap.Logger
}

func NewNegotiationHandler(service negotiation.SessionService, logger *zap.Logger) *NegotiationHandler {
	return &NegotiationHandler{Service: service, Logger: logger}
}

type startSessionRequest struct {
	UserID               string         `json:"userId"`
	Module               string         `json:"module" binding:"required"`
	ProductRef           string         `json:"productRef" binding:"required"`
	SupplierID           string         `json:"supplierId"`
	RouteBucket          string         `json:"routeBucket"`
	RouteInfo            map[string]any `json:"routeInfo"`
	BasePrice            float64        `json:"basePrice" binding:"required"`
	UserOffer            float64        `json:"userOffer" binding:"required"`
	DepartureOrEventDate string         `json:"departureOrEventDate"`
}

// StartSession opens a negotiation session for a proposed price.
func (h *NegotiationHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	eventDate := time.Now().Add(30 * 24 * time.Hour)
	if req.DepartureOrEventDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.DepartureOrEventDate)
		if err != nil {
			// Date-only payloads are common from the storefront.
			parsed, err = time.Parse("2006-01-02", req.DepartureOrEventDate)
			if err != nil {
				utils.JSONError(c, http.StatusBadRequest, "invalid departureOrEventDate", err.Error())
				return
			}
		}
		eventDate = parsed
	}

	view, err := h.Service.StartSession(c.Request.Context(), negotiation.StartInput{
		UserID:      req.UserID,
		Module:      models.Module(req.Module),
		ProductRef:  req.ProductRef,
		SupplierID:  req.SupplierID,
		RouteBucket: req.RouteBucket,
		RouteInfo:   req.RouteInfo,
		BasePrice:   req.BasePrice,
		UserOffer:   req.UserOffer,
		EventDate:   eventDate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondView(c, view)
}

type placeOfferRequest struct {
	UserOffer float64 `json:"userOffer" binding:"required"`
}

// PlaceOffer retries negotiation within an existing session.
func (h *NegotiationHandler) PlaceOffer(c *gin.Context) {
	sessionID := c.Param("sessionID")
	var req placeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	view, err := h.Service.PlaceOffer(c.Request.Context(), sessionID, req.UserOffer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondView(c, view)
}

// Accept locks in the counter-offer within the decision window.
func (h *NegotiationHandler) Accept(c *gin.Context) {
	view, err := h.Service.Accept(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondView(c, view)
}

// Confirm finalizes the booking ahead of hold expiry.
func (h *NegotiationHandler) Confirm(c *gin.Context) {
	view, err := h.Service.Confirm(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondView(c, view)
}

// CloseSession tears down a session; idempotent.
func (h *NegotiationHandler) CloseSession(c *gin.Context) {
	if err := h.Service.CloseSession(c.Request.Context(), c.Param("sessionID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// GetSession returns the current session snapshot and revealed chat beats.
func (h *NegotiationHandler) GetSession(c *gin.Context) {
	view, err := h.Service.GetSession(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondView(c, view)
}

// respondView serializes a session view, deriving the countdown from the
// active wall-clock deadline so clients never decrement it themselves.
func respondView(c *gin.Context, view *negotiation.SessionView) {
	resp := gin.H{"session": view.Session}
	if len(view.Beats) > 0 {
		resp["beats"] = view.Beats
	}

	now := time.Now()
	switch view.Session.State {
	case models.StateDecision:
		if view.Session.DecisionExpiresAt != nil {
			resp["countdownSec"] = models.CountdownSeconds(*view.Session.DecisionExpiresAt, now)
		}
	case models.StateHolding:
		if view.Session.HoldExpiresAt != nil {
			resp["countdownSec"] = models.CountdownSeconds(*view.Session.HoldExpiresAt, now)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NegotiationHandler) respondError(c *gin.Context, err error) {
	var invalidOffer *negotiation.InvalidOfferError
	var illegal *negotiation.IllegalTransitionError
	var notFound *negotiation.SessionNotFoundError

	switch {
	case errors.As(err, &invalidOffer):
		utils.JSONError(c, http.StatusBadRequest, "invalid offer", invalidOffer.Reason)
	case errors.As(err, &illegal):
		utils.JSONError(c, http.StatusConflict, "illegal transition", illegal.Error())
	case errors.As(err, &notFound):
		utils.JSONError(c, http.StatusNotFound, "session not found", notFound.SessionID)
	default:
		h.Logger.Error("negotiation request failed", zap.Error(err))
		utils.JSONError(c, http.StatusBadRequest, "request failed", err.Error())
	}
}
