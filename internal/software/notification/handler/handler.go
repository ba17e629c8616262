package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/user"
	"motoride/internal/general/jwt"
	"motoride/internal/general/logger"
	"motoride/internal/software/notification/service"
)

// NotifyHTTPHandler serves the stored notification feed.
type NotifyHTTPHandler struct {
	svc    *service.NotifyService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewNotifyHTTPHandler wires an HTTP handler around the NotifyService.
func NewNotifyHTTPHandler(svc *service.NotifyService, log *logger.Logger, auth *jwt.Manager) *NotifyHTTPHandler {
	return &NotifyHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts notification endpoints on the provided mux.
func (handler *NotifyHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /notifications",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleList),
	)
	mux.HandleFunc("PUT /notifications/{notification_id}/read",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleMarkRead),
	)
	mux.HandleFunc("GET /notifications/health", handler.handleHealth)
}

func (handler *NotifyHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "notify-service",
	})
}

// ----- Handler: GET /notifications?unread_only=&limit= -----

func (handler *NotifyHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	q := r.URL.Query()
	unreadOnly := q.Get("unread_only") == "true"
	limit := 50
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	items, err := handler.svc.ListNotifications(ctxWithTimeout, claims.Subject, unreadOnly, limit)
	if err != nil {
		handler.httpError(ctxWithTimeout, w, apperr.HTTPStatus(err), "failed to list notifications", err)
		return
	}

	views := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		views = append(views, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Content:   n.Content,
			IsRead:    n.IsRead,
			RelatedID: n.RelatedID,
			CreatedAt: n.CreatedAt,
		})
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"notifications": views,
		"count":         len(views),
	})
}

// notificationResponse is the wire shape of one feed entry.
type notificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	RelatedID string    `json:"related_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ----- Handler: PUT /notifications/{notification_id}/read -----

func (handler *NotifyHTTPHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	id := strings.TrimSpace(r.PathValue("notification_id"))
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "notification_id is required", errors.New("missing notification_id"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.MarkNotificationRead(ctxWithTimeout, id, claims.Subject); err != nil {
		handler.httpError(ctxWithTimeout, w, apperr.HTTPStatus(err), "notification not found", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{"read": true})
}

// ----- helpers -----

func (handler *NotifyHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (handler *NotifyHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *NotifyHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		var b [12]byte
		_, _ = rand.Read(b[:])
		reqID = hex.EncodeToString(b[:])
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
