package httptransport

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/cache"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/middleware"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

const governedCacheKey = "governed"

var validate = validator.New()

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	runs       RunService
	inventory  GovernedLister
	remover    GovernedRemover
	governed   *cache.LocalCache[[]domain.InventoryEntity]
	runTimeout time.Duration
	logger     *zap.Logger
}

type runListResponse struct {
	Items []domain.RunRecord `json:"items"`
	Count int                `json:"count"`
}

type governedMailboxResponse struct {
	Address     string `json:"address"`
	Description string `json:"description"`
	Quota       string `json:"quota,omitempty"`
}

type governedListResponse struct {
	Items []governedMailboxResponse `json:"items"`
	Count int                       `json:"count"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := mapError(err)
	if status >= 500 {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	Error(c, status, msg)
}

// listRuns GET /api/v1/runs?limit=N
func (h *Handler) listRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			BadRequest(c, MsgInvalidLimit)
			return
		}
		limit = n
	}

	records, err := h.runs.List(c.Request.Context(), storage.NormalizeLimit(limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []domain.RunRecord{}
	}
	Success(c, runListResponse{Items: records, Count: len(records)})
}

// latestRun GET /api/v1/runs/latest
func (h *Handler) latestRun(c *gin.Context) {
	record, err := h.runs.Latest(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, record)
}

// getRun GET /api/v1/runs/:id
func (h *Handler) getRun(c *gin.Context) {
	record, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, record)
}

// reconcile POST /api/v1/reconcile
//
// 运行与请求连接解耦，客户端断开不会中断正在进行的创建。
func (h *Handler) reconcile(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	h.logger.Info("manual reconciliation requested", zap.String("operator", middleware.Operator(c)))

	record, err := h.runs.Run(ctx, domain.TriggerAPI)
	h.invalidateGoverned()
	if err != nil {
		status, msg := mapError(err)
		if errors.Is(err, storage.ErrLocked) {
			Conflict(c, msg)
			return
		}
		h.logger.Error("manual reconciliation failed", zap.Error(err))
		if record != nil {
			ErrorWithData(c, status, MsgRunFailed, record)
			return
		}
		Error(c, status, msg)
		return
	}
	Success(c, record)
}

// listGoverned GET /api/v1/mailboxes/governed?refresh=true
func (h *Handler) listGoverned(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	var (
		governed []domain.InventoryEntity
		cached   bool
	)
	if h.governed != nil && !refresh {
		governed, cached = h.governed.Get(governedCacheKey)
	}
	if !cached {
		var err error
		governed, err = h.inventory.GovernedMailboxes(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		if h.governed != nil {
			h.governed.Set(governedCacheKey, governed, 0)
		}
	}

	items := make([]governedMailboxResponse, 0, len(governed))
	for _, e := range governed {
		item := governedMailboxResponse{Address: e.Name}
		if e.Details != nil {
			item.Description = e.Details.Description
			item.Quota = e.Details.MailboxQuota
		}
		items = append(items, item)
	}
	Success(c, governedListResponse{Items: items, Count: len(items)})
}

// removeGoverned DELETE /api/v1/mailboxes/:address
func (h *Handler) removeGoverned(c *gin.Context) {
	address := c.Param("address")
	if err := validate.Var(address, "required,email"); err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	h.logger.Info("governed mailbox removal requested",
		zap.String("address", address),
		zap.String("operator", middleware.Operator(c)),
	)

	err := h.remover.RemoveGoverned(c.Request.Context(), address)
	h.invalidateGoverned()
	if err != nil {
		h.fail(c, err)
		return
	}
	NoContent(c)
}

func (h *Handler) invalidateGoverned() {
	if h.governed != nil {
		h.governed.Delete(governedCacheKey)
	}
}
