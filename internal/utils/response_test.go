package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpersAbortChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reached := false

	r := gin.New()
	r.GET("/x", func(c *gin.Context) { Conflict(c, "busy") }, func(c *gin.Context) { reached = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.False(t, reached)
	require.Equal(t, http.StatusConflict, w.Code)

	var body ResponseData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ResponseData{Status: http.StatusConflict, Message: errorMessage, Error: "busy"}, body)
}

func TestSuccessEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { Created(c, "made", gin.H{"id": "a"}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":201,"message":"made","data":{"id":"a"}}`, w.Body.String())
}
