package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/common"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("no rows in result set")
	appErr := common.NewAppError("NOT_FOUND", "style not found", http.StatusNotFound, cause)

	require.EqualError(t, appErr, "no rows in result set")
	require.ErrorIs(t, appErr, cause)
	require.True(t, common.IsAppError(appErr))
	require.True(t, common.IsAppError(fmt.Errorf("lookup: %w", appErr)))
	require.False(t, common.IsAppError(cause))
}

func TestWriteErrorKeepsAppErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, common.BadRequest("style_no", "style_no is required", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, "style_no is required", body.Error.Message)
	require.Equal(t, "style_no", body.Error.Details["field"])
}

func TestWriteErrorMasksUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "INTERNAL", body.Error.Code)
	require.Equal(t, "internal error", body.Error.Message)
}
