package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paypipe/internal/confirmation"
	"paypipe/internal/logger"
	"paypipe/internal/monitor"
	"paypipe/internal/notification"
	"paypipe/internal/receipt"
	"paypipe/internal/verification"
	"paypipe/pkg/errors"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	Store      *confirmation.Store
	Dispatcher *notification.Dispatcher
	Monitor    *monitor.Monitor
	Verifier   *verification.Service
	Receipts   *receipt.Service
}

func NewHandler(store *confirmation.Store, dispatcher *notification.Dispatcher, mon *monitor.Monitor, verifier *verification.Service, receipts *receipt.Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		Store:       store,
		Dispatcher:  dispatcher,
		Monitor:     mon,
		Verifier:    verifier,
		Receipts:    receipts,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		confirmations := v1.Group("/confirmations")
		{
			confirmations.POST("", h.CreateConfirmation)
			confirmations.GET("/stats", h.GetConfirmationStats)
			confirmations.GET("/:id", h.GetConfirmation)
			confirmations.POST("/:id/force", h.ForceConfirm)
			confirmations.DELETE("/:id", h.CancelConfirmation)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("/status", h.GetNotificationStatus)
			notifications.POST("/alerts", h.CreateSystemAlert)
		}

		mon := v1.Group("/monitor")
		{
			mon.POST("/start", h.StartMonitor)
			mon.POST("/stop", h.StopMonitor)
			mon.GET("/stats", h.GetMonitorStats)
			mon.GET("/rules", h.ListRules)
			mon.PUT("/rules/:method", h.UpdateRule)
			mon.POST("/checks/:paymentId", h.ForceCheck)
		}

		verifications := v1.Group("/verifications")
		{
			verifications.POST("/card", h.VerifyCard)
			verifications.POST("/wallet", h.VerifyWallet)
			verifications.POST("/bank-transfer", h.VerifyBankTransfer)
		}

		receipts := v1.Group("/receipts")
		{
			receipts.POST("", h.CreateReceipt)
			receipts.GET("/:id", h.GetReceipt)
		}
		v1.GET("/payments/:paymentId/receipts", h.ListPaymentReceipts)
	}
}

type createConfirmationRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Serial    string `json:"serial"`
}

// CreateConfirmation registers a confirmation job and returns its id
// without waiting for delivery.
func (h *Handler) CreateConfirmation(c *gin.Context) {
	var req createConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	id, err := h.Store.Add(confirmation.Snapshot{
		PaymentID: req.PaymentID,
		Email:     req.Email,
		Name:      req.Name,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Serial:    req.Serial,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

func (h *Handler) GetConfirmation(c *gin.Context) {
	job, err := h.Store.Get(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) ForceConfirm(c *gin.Context) {
	if err := h.Store.ForceConfirm(c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (h *Handler) CancelConfirmation(c *gin.Context) {
	if err := h.Store.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) GetConfirmationStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.GetStats())
}

func (h *Handler) GetNotificationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dispatcher.GetStatus())
}

type createAlertRequest struct {
	AlertType string `json:"alert_type" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Severity  string `json:"severity"`
}

// CreateSystemAlert enqueues an operational alert to the admin mailbox.
func (h *Handler) CreateSystemAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}
	if req.Severity == "" {
		req.Severity = "warning"
	}

	h.Dispatcher.EnqueueSystemAlert(req.AlertType, req.Message, req.Severity)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// StartMonitor launches the auto-confirmation poller. Starting a running
// monitor is a no-op.
func (h *Handler) StartMonitor(c *gin.Context) {
	h.Monitor.Start()
	c.JSON(http.StatusOK, h.Monitor.GetStats())
}

func (h *Handler) StopMonitor(c *gin.Context) {
	h.Monitor.Stop()
	c.JSON(http.StatusOK, h.Monitor.GetStats())
}

func (h *Handler) GetMonitorStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Monitor.GetStats())
}

func (h *Handler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.Monitor.Rules())
}

type updateRuleRequest struct {
	AutoConfirmAfter *time.Duration `json:"auto_confirm_after"`
	MaxWait          *time.Duration `json:"max_wait"`
	RequireProof     *bool          `json:"require_proof"`
}

// UpdateRule merges a partial rule update for one payment method. Unknown
// methods are accepted and ignored, matching the monitor's behavior.
func (h *Handler) UpdateRule(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	h.Monitor.UpdateRule(c.Param("method"), monitor.RulePatch{
		AutoConfirmAfter: req.AutoConfirmAfter,
		MaxWait:          req.MaxWait,
		RequireProof:     req.RequireProof,
	})
	c.JSON(http.StatusOK, h.Monitor.Rules())
}

func (h *Handler) ForceCheck(c *gin.Context) {
	result, err := h.Monitor.ForceCheck(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type verifyPaymentRequest struct {
	PaymentID   string `json:"payment_id" binding:"required"`
	ProviderRef string `json:"provider_ref" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
}

func (h *Handler) VerifyCard(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	result, err := h.Verifier.VerifyCardPayment(c.Request.Context(), verification.Expectation{
		PaymentID:   req.PaymentID,
		ProviderRef: req.ProviderRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) VerifyWallet(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	result, err := h.Verifier.VerifyWalletPayment(c.Request.Context(), verification.Expectation{
		PaymentID:   req.PaymentID,
		ProviderRef: req.ProviderRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type verifyBankTransferRequest struct {
	PaymentID        string    `json:"payment_id" binding:"required"`
	ProofFilename    string    `json:"proof_filename"`
	DeclaredAmount   int64     `json:"declared_amount"`
	UploadedAt       time.Time `json:"uploaded_at"`
	PaymentCreatedAt time.Time `json:"payment_created_at"`
}

func (h *Handler) VerifyBankTransfer(c *gin.Context) {
	var req verifyBankTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	result, err := h.Verifier.VerifyBankTransferPayment(c.Request.Context(), req.PaymentID, verification.Proof{
		Filename:         req.ProofFilename,
		DeclaredAmount:   req.DeclaredAmount,
		UploadedAt:       req.UploadedAt,
		PaymentCreatedAt: req.PaymentCreatedAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type createReceiptRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Serial    string `json:"serial"`
}

func (h *Handler) CreateReceipt(c *gin.Context) {
	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	rec, err := h.Receipts.Generate(c.Request.Context(), receipt.PaymentDetails{
		PaymentID: req.PaymentID,
		Email:     req.Email,
		Name:      req.Name,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Serial:    req.Serial,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetReceipt(c *gin.Context) {
	rec, err := h.Receipts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListPaymentReceipts(c *gin.Context) {
	receipts, err := h.Receipts.ListByPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}
