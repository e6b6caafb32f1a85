package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifactsOnly struct {
	Unimplemented
	ids   []string
	kinds []*string
}

func (a *artifactsOnly) GetArtifact(w http.ResponseWriter, r *http.Request, id string) {
	a.ids = append(a.ids, id)
	w.WriteHeader(http.StatusOK)
}

func (a *artifactsOnly) ListAudit(w http.ResponseWriter, r *http.Request, params ListAuditParams) {
	a.kinds = append(a.kinds, params.Kind)
	w.WriteHeader(http.StatusOK)
}

func TestHandlerBindsParamsAndDefaultsToUnimplemented(t *testing.T) {
	si := &artifactsOnly{}
	h := Handler(si)

	call := func(method, path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/certified/artifacts/abc"))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/certified/artifacts/abc.sig"))
	assert.Equal(t, http.StatusOK, call(http.MethodHead, "/api/certified/artifacts/abc"))
	assert.Equal(t, []string{"abc", "abc.sig", "abc"}, si.ids)

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/certified/audit?kind=item"))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/certified/audit"))
	require.Len(t, si.kinds, 2)
	require.NotNil(t, si.kinds[0])
	assert.Equal(t, "item", *si.kinds[0])
	assert.Nil(t, si.kinds[1])

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/certified/verify"},
		{http.MethodGet, "/api/certified/items"},
		{http.MethodGet, "/api/certified/items/x"},
		{http.MethodPut, "/api/certified/items/x"},
		{http.MethodPost, "/api/certified/items/x/publish"},
		{http.MethodPost, "/api/certified/sources"},
	} {
		assert.Equal(t, http.StatusNotImplemented, call(tc.method, tc.path), tc.method+" "+tc.path)
	}

	assert.Equal(t, http.StatusMethodNotAllowed, call(http.MethodDelete, "/api/certified/artifacts/abc"))
}
