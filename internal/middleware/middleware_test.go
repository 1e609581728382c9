package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/auth"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
	UseJSONFieldNames()
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()), Recovery(), ErrorHandler())
	r.Use(mw...)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRequestID(t *testing.T) {
	r := newEngine()
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
	assert.Equal(t, w.Header().Get(HeaderXRequestID), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not found", &model.PatientNotFoundError{PatientID: "p1"}, http.StatusNotFound, "patient p1 not found"},
		{"validation", &model.PriorityOverrideError{Value: 9}, http.StatusBadRequest, "manual priority 9 out of range [1, 5]"},
		{"conflict", &model.CaseAlreadyAssignedError{PatientID: "p1", AssignedDoctorID: "d1", RequestedDoctorID: "d2"}, http.StatusConflict, ""},
		{"internal hides detail", errors.New("db exploded"), http.StatusInternalServerError, "internal server error"},
		{"app error", apperrors.NewBadRequest("bad", nil), http.StatusBadRequest, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine()
			r.GET("/", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.NotEmpty(t, resp.TraceID)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
		})
	}
}

func TestErrorHandler_ValidationFields(t *testing.T) {
	type body struct {
		Name string `json:"name" binding:"required"`
		Age  int    `json:"age" binding:"min=0,max=150"`
	}
	r := newEngine()
	r.POST("/", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			_ = c.Error(apperrors.NewBadRequest("invalid request body", err))
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"age":200}`)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	fields := map[string]string{}
	for _, e := range resp.Errors {
		fields[e.Field] = e.Message
	}
	assert.Equal(t, "field is required", fields["name"])
	assert.Equal(t, "value is too large", fields["age"])
}

func TestRecovery(t *testing.T) {
	r := newEngine()
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Message)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2})
	r := newEngine(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	open := newEngine(NewRateLimiter(config.RateLimitConfig{}).RateLimit())
	open.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestAuthenticate(t *testing.T) {
	jwt := auth.NewJWTManager(config.JWTConfig{Secret: "k", Issuer: "triage", ExpiryHours: 1})
	token, err := jwt.GenerateAccessToken(&model.Staff{ID: "d1", Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"staff": StaffID(c), "role": c.GetString(ContextStaffRole)})
	}

	t.Run("bearer token", func(t *testing.T) {
		r := newEngine(NewAuthMiddleware(jwt).Authenticate())
		r.GET("/", handler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"staff":"d1","role":"doctor"}`, w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		r := newEngine(NewAuthMiddleware(jwt).Authenticate())
		r.GET("/", handler)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing and invalid", func(t *testing.T) {
		r := newEngine(NewAuthMiddleware(jwt).Authenticate())
		r.GET("/", handler)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("trusted header mode", func(t *testing.T) {
		r := newEngine(NewAuthMiddleware(nil).Authenticate())
		r.GET("/", handler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderStaffID, "nurse-7")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"staff":"nurse-7","role":""}`, w.Body.String())
	})
}

func TestCORSAndSecurity(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig([]string{"https://er.example"})), SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://er.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://er.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestSizeLimit(t *testing.T) {
	r := newEngine(SizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, w.Code)
}
