package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/api"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/config"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestErrorHandlerMiddleware 测试错误类型到状态码的映射
func TestErrorHandlerMiddleware(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"api error", api.WrapError(errors.New("boom"), http.StatusTeapot, "teapot"), http.StatusTeapot},
		{"field errors", workflow.FieldErrors{{Field: "name", Message: "is required"}}, http.StatusBadRequest},
		{"state conflict", &workflow.StateConflictError{Entity: "document", ID: "d1", Current: "APPROVED"}, http.StatusConflict},
		{"escalation not due", workflow.ErrEscalationNotDue, http.StatusConflict},
		{"dependency", &workflow.DependencyUnsatisfiedError{}, http.StatusUnprocessableEntity},
		{"escalation config", &workflow.EscalationConfigError{ApprovalID: "a1", Reason: "no substitute approver"}, http.StatusUnprocessableEntity},
		{"no assignees", fmt.Errorf("step review: %w", workflow.ErrNoAssignees), http.StatusUnprocessableEntity},
		{"not assignee", workflow.ErrNotAssignee, http.StatusForbidden},
		{"not found", fmt.Errorf("load document: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(api.ErrorHandlerMiddleware())
			router.GET("/x", func(c *gin.Context) {
				_ = c.Error(tt.err)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want, errorBody(t, w).Code)
		})
	}
}

// TestErrorHandlerMiddleware_Written 测试已写响应时不覆盖
func TestErrorHandlerMiddleware_Written(t *testing.T) {
	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware())
	router.GET("/x", func(c *gin.Context) {
		c.String(http.StatusAccepted, "done")
		_ = c.Error(errors.New("late"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "done", w.Body.String())
}

// TestNewLoggerFromConfig 测试文件输出和热更新级别
func TestNewLoggerFromConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := api.NewLoggerFromConfig(&config.LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		File:       file,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.Level)

	logger.WithField("document_id", "d1").Info("document submitted")
	logger.Debug("hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"eprabandhan-workflow"`)
	assert.Contains(t, string(data), `"document_id":"d1"`)
	assert.NotContains(t, string(data), "hidden")

	api.ConfigureLogger(logger, &config.LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.Level)
}
