package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.Validationf("empty body"), http.StatusBadRequest},
		{model.ErrNotParticipant, http.StatusForbidden},
		{model.ErrAnnouncementLocked, http.StatusForbidden},
		{service.ErrAdminNotRemovable, http.StatusForbidden},
		{model.ErrAlreadyParticipant, http.StatusConflict},
		{fmt.Errorf("%w (send after 3 attempts)", model.ErrConcurrencyExhausted), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: minio down", model.ErrAttachmentFailure), http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func serveError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, err) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRespondError(t *testing.T) {
	t.Run("contention advertises retry", func(t *testing.T) {
		w := serveError(model.ErrConcurrencyExhausted)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		w := serveError(errors.New("pq: password authentication failed"))

		var body model.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", body.Error)
	})

	t.Run("authorization errors keep their message", func(t *testing.T) {
		w := serveError(model.ErrNotModerator)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "moderator rights required")
	})
}

func TestParamID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/conversations/:id", func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	for target, want := range map[string]int{
		"/conversations/12":  http.StatusOK,
		"/conversations/0":   http.StatusBadRequest,
		"/conversations/-3":  http.StatusBadRequest,
		"/conversations/abc": http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, want, w.Code, target)
	}
}
