package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256HexIdenticalBytesIdenticalDigest(t *testing.T) {
	p1 := []byte(`{"title":"Fractions","level":2}`)
	p2 := append([]byte(nil), p1...)

	d1, err := Sha256Hex(p1)
	require.NoError(t, err)
	d2, err := Sha256Hex(p2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	sum := sha256.Sum256(p1)
	assert.Equal(t, hex.EncodeToString(sum[:]), d1, "buffers must be hashed unchanged")
}

func TestSha256HexStringIsUTF8Bytes(t *testing.T) {
	s := "certified: ünïcode"
	fromString, err := Sha256Hex(s)
	require.NoError(t, err)
	fromBytes, err := Sha256Hex([]byte(s))
	require.NoError(t, err)
	assert.Equal(t, fromBytes, fromString)
}

func TestSha256HexObjectsAreKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", true}, "c": map[string]any{"z": 1, "y": 2}}
	b := json.RawMessage(`{ "c": {"y":2,"z":1}, "a": ["x", true], "b": 1 }`)

	da, err := Sha256Hex(a)
	require.NoError(t, err)
	db, err := Sha256Hex(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	canon, err := Canonical(b)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",true],"b":1,"c":{"y":2,"z":1}}`, string(canon))
}

func TestCanonicalDoesNotEscapeHTML(t *testing.T) {
	canon, err := Canonical(map[string]string{"html": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>&</b>"}`, string(canon))
}

func TestETagIsQuotedAndStable(t *testing.T) {
	v := map[string]any{"id": "abc", "n": 3}
	first, err := ETag(v)
	require.NoError(t, err)
	second, err := ETag(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	sum, err := Sha256Hex(v)
	require.NoError(t, err)
	assert.Equal(t, `"`+sum+`"`, first)
}

func TestCanonicalRejectsInvalidRawJSON(t *testing.T) {
	_, err := Canonical(json.RawMessage(`{"broken":`))
	assert.Error(t, err)
}

func TestETagMiddleware(t *testing.T) {
	body := []byte(`{"id":"abc"}`)
	plain := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	t.Run("sets etag from body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ETagMiddleware(plain).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Quote(HashBytes(body)), rec.Header().Get("ETag"))
		assert.Equal(t, string(body), rec.Body.String())
	})

	t.Run("never overwrites an existing validator", func(t *testing.T) {
		preset := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"upstream"`)
			_, _ = w.Write(body)
		})
		rec := httptest.NewRecorder()
		ETagMiddleware(preset).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, `"upstream"`, rec.Header().Get("ETag"))
	})

	t.Run("if-none-match yields 304", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("If-None-Match", Quote(HashBytes(body)))
		rec := httptest.NewRecorder()
		ETagMiddleware(plain).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.Bytes())
	})

	t.Run("head carries get headers without a body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ETagMiddleware(plain).ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/x", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Quote(HashBytes(body)), rec.Header().Get("ETag"))
		assert.Equal(t, "12", rec.Header().Get("Content-Length"))
		assert.Empty(t, rec.Body.Bytes())
	})

	t.Run("non-200 responses are untouched", func(t *testing.T) {
		missing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND"}}`))
		})
		rec := httptest.NewRecorder()
		ETagMiddleware(missing).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("ETag"))
	})

	t.Run("non-GET passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ETagMiddleware(plain).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Empty(t, rec.Header().Get("ETag"))
	})
}

func TestCanonicalJSONEncodesScalarsAsJSON(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
	}{
		"string":      {"hello", `"hello"`},
		"number":      {json.Number("42"), `42`},
		"float":       {1.5, `1.5`},
		"raw message": {json.RawMessage(`{"b":2, "a":"x"}`), `{"a":"x","b":2}`},
		"raw string":  {json.RawMessage(`"hello"`), `"hello"`},
		"raw padded":  {json.RawMessage(" 42\n"), `42`},
		"object":      {map[string]any{"z": true, "a": nil}, `{"a":null,"z":true}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := CanonicalJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
			assert.True(t, json.Valid(got))
		})
	}

	a, err := CanonicalJSON("hello")
	require.NoError(t, err)
	b, err := Sha256Hex(json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, b, HashBytes(a), "a stored string hashes like the same string sent inline")
}
