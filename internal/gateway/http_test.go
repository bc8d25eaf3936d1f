// internal/gateway/http_test.go
package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

func TestWriteErrorUsesGatewayLogger(t *testing.T) {
	global := test.NewGlobal()
	log, hook := test.NewNullLogger()
	g := New(nil, nil, nil, WithLogger(log))
	req := httptest.NewRequest(http.MethodGet, "/sessions/s1", nil)

	rec := httptest.NewRecorder()
	g.writeError(rec, req, errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Unhandled error", hook.LastEntry().Message)

	rec = httptest.NewRecorder()
	g.writeError(rec, req, apperrors.New(apperrors.CodeNotFound, "no such session"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, hook.AllEntries(), 1, "client errors are not logged")

	assert.Empty(t, global.AllEntries())
}
