package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/proofguardlab/proofguard/internal/warranty"
	"go.uber.org/zap"
)

var errMissingTracker = errors.New("tracker service dependency required")

// Dependencies wires the HTTP surface to the core service.
type Dependencies struct {
	Tracker *warranty.Service
	Logger  *zap.Logger
}

// NewHTTPHandler builds the REST surface consumed by the presentation layer.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tracker == nil {
		return nil, errMissingTracker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{tracker: deps.Tracker, logger: logger}

	router.GET("/items", handler.handleListItems)
	router.POST("/items", handler.handleCreateItem)
	router.PUT("/items/:id", handler.handleUpdateItem)
	router.DELETE("/items/:id", handler.handleSoftDelete)
	router.GET("/search", handler.handleSearch)
	router.GET("/items/:id/logs", handler.handleItemLogs)
	router.GET("/logs", handler.handleLogs)
	router.GET("/trash", handler.handleListTrash)
	router.POST("/trash/:id/restore", handler.handleRestore)
	router.DELETE("/trash/:id", handler.handlePurge)
	router.GET("/notifications", handler.handleNotifications)
	router.POST("/import", handler.handleImport)
	router.GET("/export", handler.handleExport)

	return router, nil
}

type httpHandler struct {
	tracker *warranty.Service
	logger  *zap.Logger
}

type itemPayload struct {
	warranty.Item
	Status   warranty.Status `json:"status"`
	DaysLeft string          `json:"daysLeft"`
	IsNew    bool            `json:"isNew"`
}

func presentItem(item warranty.Item, now time.Time) itemPayload {
	return itemPayload{
		Item:     item,
		Status:   warranty.DeriveStatus(item, now),
		DaysLeft: warranty.DaysRemainingLabel(item, now),
		IsNew:    warranty.IsRecentlyCreated(item, now),
	}
}

func presentItems(items []warranty.Item, now time.Time) []itemPayload {
	payloads := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, presentItem(item, now))
	}
	return payloads
}

func (h *httpHandler) handleListItems(c *gin.Context) {
	items, err := h.tracker.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list_items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": presentItems(items, time.Now())})
}

func (h *httpHandler) handleCreateItem(c *gin.Context) {
	var draft warranty.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	item, err := h.tracker.Create(c.Request.Context(), draft)
	if err != nil {
		h.fail(c, "create_item", err)
		return
	}
	c.JSON(http.StatusCreated, presentItem(item, time.Now()))
}

func (h *httpHandler) handleUpdateItem(c *gin.Context) {
	var draft warranty.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	item, changed, err := h.tracker.Update(c.Request.Context(), c.Param("id"), draft)
	if err != nil {
		h.fail(c, "update_item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":    presentItem(item, time.Now()),
		"changed": changed,
	})
}

func (h *httpHandler) handleSoftDelete(c *gin.Context) {
	trashed, err := h.tracker.SoftDelete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "soft_delete", err)
		return
	}
	c.JSON(http.StatusOK, trashed)
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	items, err := h.tracker.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, "search_items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": presentItems(items, time.Now())})
}

func (h *httpHandler) handleItemLogs(c *gin.Context) {
	logs, err := h.tracker.LogsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "item_logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *httpHandler) handleLogs(c *gin.Context) {
	logs, err := h.tracker.Logs(c.Request.Context())
	if err != nil {
		h.fail(c, "list_logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *httpHandler) handleListTrash(c *gin.Context) {
	trash, err := h.tracker.ListTrash(c.Request.Context())
	if err != nil {
		h.fail(c, "list_trash", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trash": trash})
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	item, err := h.tracker.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "restore_item", err)
		return
	}
	c.JSON(http.StatusOK, presentItem(item, time.Now()))
}

func (h *httpHandler) handlePurge(c *gin.Context) {
	purged, err := h.tracker.Purge(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "purge_item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": purged.ID})
}

// handleNotifications returns the items whose remaining days fall within
// their reminder window, the feed behind the reminder bell.
func (h *httpHandler) handleNotifications(c *gin.Context) {
	items, err := h.tracker.List(c.Request.Context())
	if err != nil {
		h.fail(c, "notifications", err)
		return
	}
	now := time.Now()
	expiring := make([]itemPayload, 0)
	for _, item := range items {
		if warranty.DeriveStatus(item, now) == warranty.StatusExpiringSoon {
			expiring = append(expiring, presentItem(item, now))
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": expiring, "count": len(expiring)})
}

func (h *httpHandler) handleImport(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_csv_body"})
		return
	}
	summary, err := h.tracker.ImportCSV(c.Request.Context(), string(body))
	if err != nil {
		h.fail(c, "import_csv", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	items, err := h.tracker.List(c.Request.Context())
	if err != nil {
		h.fail(c, "export_csv", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="proofguard_backup.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(warranty.ExportCSV(items)))
}

// fail maps core errors onto HTTP statuses. Persistence failures are logged
// and surfaced as a non-fatal notice; the process keeps running.
func (h *httpHandler) fail(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, warranty.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, warranty.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, warranty.ErrDuplicate),
		errors.Is(err, warranty.ErrImportLocked),
		errors.Is(err, warranty.ErrEditLimitReached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
