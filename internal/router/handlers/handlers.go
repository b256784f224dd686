package handlers

import (
	"CommentThreads/internal/models"
	"CommentThreads/internal/router/middleware"
	"CommentThreads/internal/service"
	"encoding/json"
	"errors"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type CommentHandler struct {
	service *service.Service
}

func NewCommentHandler(service *service.Service) *CommentHandler {
	return &CommentHandler{service: service}
}

func (h *CommentHandler) CreateComment(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	log.Debug("Creating comment")
	req := &models.CreateRequest{}
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		log.Error("Failed to decode request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": models.KeyBody})
		return
	}
	req.Thread = c.Param("thread")

	created, err := h.service.CreateComment(c.Request.Context(), *req, middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to create comment", err, models.KeySave)
		return
	}
	log.Debug("Created comment", zap.Int64("id", created.ID))
	c.JSON(http.StatusCreated, ginext.H{"comment": created})
}

func (h *CommentHandler) GetThread(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	// A missing limit stays zero so the configured default applies.
	limit, _ := strconv.Atoi(c.Query("limit"))
	sortOrder := c.DefaultQuery("sort_order", "asc")
	policy := models.ParsePolicy(c.Query("view"))

	log.Debug("Getting thread", zap.String("thread", c.Param("thread")), zap.String("view", string(policy)))
	view, err := h.service.GetThread(c.Request.Context(), c.Param("thread"), policy,
		models.Page{Page: page, Limit: limit, SortOrder: sortOrder}, middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to get thread", err, models.KeySave)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CommentHandler) SearchComments(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	query := c.Query("q")

	log.Debug("Searching for comments", zap.String("query", query))
	results, err := h.service.SearchComments(c.Request.Context(), c.Param("thread"), query, middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to search comments", err, models.KeySearch)
		return
	}
	c.JSON(http.StatusOK, ginext.H{"comments": results})
}

func (h *CommentHandler) GetSubtree(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	id, ok := parseID(c, log)
	if !ok {
		return
	}
	node, err := h.service.GetSubtree(c.Request.Context(), id, models.ParsePolicy(c.Query("view")), middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to get comments", err, models.KeySave)
		return
	}
	c.JSON(http.StatusOK, ginext.H{"comment": node})
}

func (h *CommentHandler) GetAncestors(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	id, ok := parseID(c, log)
	if !ok {
		return
	}
	path, err := h.service.GetAncestors(c.Request.Context(), id, models.ParsePolicy(c.Query("view")), middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to get ancestors", err, models.KeySave)
		return
	}
	c.JSON(http.StatusOK, ginext.H{"ancestors": path})
}

func (h *CommentHandler) EditComment(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	id, ok := parseID(c, log)
	if !ok {
		return
	}
	req := &models.EditRequest{}
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		log.Error("Failed to decode request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": models.KeyBody})
		return
	}

	updated, err := h.service.EditComment(c.Request.Context(), id, req.Body, middleware.Actor(c))
	if err != nil {
		respondError(c, log, "Failed to edit comment", err, models.KeySave)
		return
	}
	c.JSON(http.StatusOK, ginext.H{"comment": updated})
}

func (h *CommentHandler) DeleteComment(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	log.Debug("Deleting comment")
	id, ok := parseID(c, log)
	if !ok {
		return
	}
	if err := h.service.DeleteComment(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		respondError(c, log, "Failed to delete comment", err, models.KeyRemove)
		return
	}
	log.Debug("Deleted comment", zap.Int64("id", id))
	c.JSON(http.StatusOK, ginext.H{"id": id})
}

// Moderate applies one bulk action to {"ids": [...]}. The response carries
// the per-id outcomes even when some items failed.
func (h *CommentHandler) Moderate(c *ginext.Context) {
	log := c.MustGet("logger").(*zap.Logger)
	action, ok := models.ParseAction(c.Param("action"))
	if !ok {
		log.Warn("Unknown moderation action", zap.String("action", c.Param("action")))
		c.JSON(http.StatusBadRequest, ginext.H{"error": models.KeyAction})
		return
	}
	req := &models.IDsRequest{}
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		log.Error("Failed to decode request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ginext.H{"error": models.KeyNoSelection})
		return
	}

	result, err := h.service.BulkTransition(c.Request.Context(), req.IDs, action, middleware.Actor(c))
	if err != nil && result == nil {
		respondError(c, log, "Failed to moderate comments", err, models.KeySave)
		return
	}
	if err != nil {
		log.Warn("Moderation interrupted", zap.String("action", string(action)), zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}

func parseID(c *ginext.Context, log *zap.Logger) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		log.Warn("Invalid comment id", zap.String("id", idStr))
		c.JSON(http.StatusBadRequest, ginext.H{"error": models.KeyNoSelection})
		return 0, false
	}
	return id, true
}

// respondError maps the error taxonomy onto HTTP statuses. Unclassified
// errors are answered with fallback so storage details never reach clients.
func respondError(c *ginext.Context, log *zap.Logger, msg string, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
		c.JSON(status, ginext.H{"error": fallback})
		return
	}
	log.Warn(msg, zap.Error(err))
	c.JSON(status, ginext.H{"error": models.KeyOf(err)})
}
