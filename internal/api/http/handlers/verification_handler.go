package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/service"
)

const streamKeepAlive = 15 * time.Second

// VerificationHandler resolves pending registrations.
type VerificationHandler struct {
	service *service.MembershipService
	logger  *zap.Logger
}

// NewVerificationHandler constructs handler.
func NewVerificationHandler(membershipService *service.MembershipService, logger *zap.Logger) *VerificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationHandler{service: membershipService, logger: logger}
}

// ListPending GET /verification/pending.
func (h *VerificationHandler) ListPending(c *fiber.Ctx) error {
	members, err := h.service.ListPending(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberList(members)})
}

// StreamPending GET /verification/pending/stream sends the pending list as server-sent
// events whenever it changes. The caller is authorized before any header is written. The
// watch lives only as long as the stream writer.
func (h *VerificationHandler) StreamPending(c *fiber.Ctx) error {
	actor := auth.IdentityFromContext(c)
	if _, err := h.service.ListPending(c.UserContext(), actor); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.logger
	svc := h.service
	shutdown := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		updates, err := svc.WatchPending(ctx, actor)
		if err != nil {
			logger.Debug("pending stream refused", zap.Error(err))
			return
		}
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case pending, ok := <-updates:
				if !ok {
					return
				}
				if err := writePendingEvent(w, pending); err != nil {
					logger.Debug("pending stream closed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-shutdown:
				return
			}
		}
	})
	return nil
}

// writePendingEvent frames one pending list as an SSE "pending" event.
func writePendingEvent(w *bufio.Writer, pending []domain.Member) error {
	payload, err := json.Marshal(dto.NewMemberList(pending))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: pending\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

// Approve POST /verification/:id/approve.
func (h *VerificationHandler) Approve(c *fiber.Ctx) error {
	member, err := h.service.Approve(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(*member)})
}

// Reject POST /verification/:id/reject.
func (h *VerificationHandler) Reject(c *fiber.Ctx) error {
	if err := h.service.Reject(c.UserContext(), auth.IdentityFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
