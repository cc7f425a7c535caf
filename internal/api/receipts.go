package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/nyashahama/checkout-receipts-backend/internal/delivery"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
)

// Failure reasons reported alongside the generic 500 message.
const (
	reasonGeneration = "receipt_generation"
	reasonRejected   = "message_rejected"
	reasonCancelled  = "cancelled"
)

const sendReceiptFailed = "Failed to send receipt email."

// ─── POST /send-receipt ───────────────────────────────────────────────────────

type sendReceiptResponse struct {
	Success bool `json:"success"`
}

type sendReceiptError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// handleSendReceipt renders a PDF receipt for the posted order and emails it
// to the customer. Validation failures return 400 before any rendering or
// mail I/O happens.
func (s *Server) handleSendReceipt(w http.ResponseWriter, r *http.Request) {
	var req receipt.OrderRequest
	if !decodeCart(w, r, &req) {
		return
	}

	order, err := req.ToOrder()
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	res, err := s.receipts.Deliver(ctx, order)
	if err != nil {
		var verr *receipt.ValidationError
		if errors.As(err, &verr) {
			respondErr(w, http.StatusBadRequest, verr.Error())
			return
		}

		reason := failureReason(err)
		s.logger.Error("send receipt failed",
			"error", err,
			"reason", reason,
			logField(r),
		)
		respond(w, http.StatusInternalServerError, sendReceiptError{
			Error:  sendReceiptFailed,
			Reason: reason,
		})
		return
	}

	s.logger.Info("receipt sent",
		"message_id", res.MessageID,
		"accepted", len(res.Accepted),
		logField(r),
	)
	respond(w, http.StatusOK, sendReceiptResponse{Success: true})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, delivery.ErrRender):
		return reasonGeneration
	case errors.Is(err, delivery.ErrTransport):
		return reasonRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonCancelled
	default:
		return reasonGeneration
	}
}
