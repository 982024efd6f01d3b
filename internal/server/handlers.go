package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledgerfund/internal/loader"
	"ledgerfund/internal/model"
	"ledgerfund/internal/referral"
	"ledgerfund/internal/verify"
)

// Handler exposes the pipeline components over HTTP.
type Handler struct {
	// baseCtx bounds background work started by requests (refreshes and
	// transfer watches outlive the request that triggered them).
	baseCtx   context.Context
	loader    *loader.Loader
	referrals *referral.Service
	transfers *verify.Manager
	decimals  uint8
	logger    *zap.Logger
}

// NewHandler builds the API handler set.
func NewHandler(baseCtx context.Context, ldr *loader.Loader, referrals *referral.Service, transfers *verify.Manager, tokenDecimals uint8, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		baseCtx:   baseCtx,
		loader:    ldr,
		referrals: referrals,
		transfers: transfers,
		decimals:  tokenDecimals,
		logger:    logger,
	}
}

// GetProposals returns the current proposal snapshot with tier states.
func (h *Handler) GetProposals(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{
		"proposals":      h.loader.Proposals(),
		"loading_states": h.loader.LoadingStates(),
	})
}

// GetLoadingStates returns only the per-tier loading state.
func (h *Handler) GetLoadingStates(c *gin.Context) {
	respondOK(c, http.StatusOK, h.loader.LoadingStates())
}

// RefreshProposals triggers a reload in the background. Concurrent
// triggers join the in-flight run.
func (h *Handler) RefreshProposals(c *gin.Context) {
	go func() {
		if err := h.loader.Refresh(h.baseCtx); err != nil {
			h.logger.Warn("manual refresh failed", zap.Error(err))
		}
	}()
	respondOK(c, http.StatusAccepted, gin.H{"refreshing": true})
}

type createReferralRequest struct {
	ReferrerAddress string `json:"referrer_address" binding:"required"`
	ReferredAddress string `json:"referred_address" binding:"required"`
}

// CreateReferral records a referrer/referred relationship.
func (h *Handler) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.referrals.Create(c.Request.Context(), req.ReferrerAddress, req.ReferredAddress)
	if err != nil {
		if errors.Is(err, referral.ErrDuplicate) {
			respondError(c, http.StatusConflict, "referral already exists for this pair")
			return
		}
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(c, http.StatusCreated, record)
}

// GetReferrals lists referrals made by the referrer query address.
func (h *Handler) GetReferrals(c *gin.Context) {
	referrals, err := h.referrals.ByReferrer(c.Request.Context(), c.Query("referrer"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if referrals == nil {
		referrals = []model.Referral{}
	}
	respondOK(c, http.StatusOK, referrals)
}

// MarkNFTPurchased flips a referral's purchase flag.
func (h *Handler) MarkNFTPurchased(c *gin.Context) {
	h.markFlag(c, h.referrals.MarkNFTPurchased)
}

// MarkPaymentProcessed flips a referral's payment flag.
func (h *Handler) MarkPaymentProcessed(c *gin.Context) {
	h.markFlag(c, h.referrals.MarkPaymentProcessed)
}

func (h *Handler) markFlag(c *gin.Context, mark func(context.Context, string) error) {
	if err := mark(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, referral.ErrNotFound) {
			respondError(c, http.StatusNotFound, "referral not found")
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(c, http.StatusOK, gin.H{"updated": true})
}

type watchTransferRequest struct {
	BountyID       string `json:"bounty_id" binding:"required"`
	TokenAddress   string `json:"token_address" binding:"required"`
	HoldingAddress string `json:"holding_address" binding:"required"`
	TargetAmount   string `json:"target_amount" binding:"required"`
	TokenLabel     string `json:"token_label"`
}

type transferView struct {
	model.TransferState
	Progress float64 `json:"progress"`
}

// WatchTransfer starts (or joins) background verification of a bounty
// deposit. The watch outlives the request.
func (h *Handler) WatchTransfer(c *gin.Context) {
	var req watchTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(req.TokenAddress) {
		respondError(c, http.StatusBadRequest, "invalid token address")
		return
	}
	if !common.IsHexAddress(req.HoldingAddress) {
		respondError(c, http.StatusBadRequest, "invalid holding address")
		return
	}
	target, err := decimal.NewFromString(req.TargetAmount)
	if err != nil || !target.IsPositive() {
		respondError(c, http.StatusBadRequest, "target amount must be a positive decimal")
		return
	}

	state, err := h.transfers.Watch(h.baseCtx, req.BountyID, verify.Config{
		Token:         common.HexToAddress(req.TokenAddress),
		Holder:        common.HexToAddress(req.HoldingAddress),
		TokenDecimals: h.decimals,
		TargetAmount:  target,
		TokenLabel:    req.TokenLabel,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(c, http.StatusAccepted, transferView{TransferState: state, Progress: state.Progress()})
}

// GetTransfer returns the current state of a watched bounty deposit.
func (h *Handler) GetTransfer(c *gin.Context) {
	state, ok := h.transfers.Status(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "no watch for this bounty")
		return
	}
	respondOK(c, http.StatusOK, transferView{TransferState: state, Progress: state.Progress()})
}
