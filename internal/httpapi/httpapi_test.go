package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/braidcore/internal/auth"
	"github.com/Polqt/braidcore/internal/broadcast"
	"github.com/Polqt/braidcore/internal/store"
)

func bearerToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	c := jwt.MapClaims{"sub": subject, "email": "alice@example.com", "exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func newTestDeps(t *testing.T) (*Deps, []byte) {
	t.Helper()
	secret := []byte("s3cr3t")
	return NewDeps(broadcast.New(8, time.Hour), auth.NewVerifier(secret), nil, nil), secret
}

func TestHealthz(t *testing.T) {
	d, _ := newTestDeps(t)
	router := NewRouter(d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatPutThenSubscribeSeesMessage(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	authHeader := bearerToken(t, secret, uuid.New().String())

	putBody := strings.NewReader(`{"text":"hello","author":"alice","timestamp":"2026-01-01T00:00:00Z"}`)
	putReq := httptest.NewRequest("PUT", "/chat", putBody)
	putReq.Header.Set("Authorization", authHeader)
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)

	require.Equal(t, http.StatusOK, putRec.Code, "body: %s", putRec.Body.String())
	assert.Equal(t, `"v1"`, putRec.Header().Get("Version"))

	ctx, cancel := context.WithCancel(context.Background())
	getReq := httptest.NewRequest("GET", "/chat", nil).WithContext(ctx)
	getReq.Header.Set("Subscribe", "true")
	getRec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(getRec, getReq)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 209, getRec.Code)
	assert.Contains(t, getRec.Body.String(), "hello")
}

func TestChatPutRejectsUnauthenticatedWith401(t *testing.T) {
	d, _ := newTestDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest("PUT", "/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body.Kind)
}

func TestDocumentPutThenGetReflectsText(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	authHeader := bearerToken(t, secret, uuid.New().String())

	body := strings.NewReader(`{"operations":[{"type":"Insert","position":0,"text":"hi"}]}`)
	putReq := httptest.NewRequest("PUT", "/collab/doc-1", body)
	putReq.Header.Set("Authorization", authHeader)
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)

	require.Equal(t, http.StatusOK, putRec.Code, "body: %s", putRec.Body.String())

	ctx, cancel := context.WithCancel(context.Background())
	getReq := httptest.NewRequest("GET", "/collab/doc-1", nil).WithContext(ctx)
	getReq.Header.Set("Subscribe", "true")
	getRec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(getRec, getReq)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, getRec.Body.String(), "hi")
}

func TestDocumentPutRejectsUnknownParentWith400(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	authHeader := bearerToken(t, secret, uuid.New().String())

	body := strings.NewReader(`{"operations":[{"type":"Insert","position":0,"text":"hi"}],"parents":["never-issued"]}`)
	req := httptest.NewRequest("PUT", "/collab/doc-1", body)
	req.Header.Set("Authorization", authHeader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// S2 — chat concurrent writers: two concurrent PUTs both succeed, are
// assigned distinct versions, and both land in the log.
func TestChatConcurrentWritersGetDistinctVersions(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	alice := bearerToken(t, secret, uuid.New().String())
	bob := bearerToken(t, secret, uuid.New().String())

	put := func(authHeader, text string) (string, int) {
		req := httptest.NewRequest("PUT", "/chat", strings.NewReader(
			`{"text":"`+text+`","author":"a","timestamp":"2026-01-01T00:00:00Z"}`))
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Header().Get("Version"), rec.Code
	}

	var va, vb string
	var ca, cb int
	done := make(chan struct{}, 2)
	go func() { va, ca = put(alice, "from-alice"); done <- struct{}{} }()
	go func() { vb, cb = put(bob, "from-bob"); done <- struct{}{} }()
	<-done
	<-done

	require.Equal(t, http.StatusOK, ca)
	require.Equal(t, http.StatusOK, cb)
	assert.NotEqual(t, va, vb)

	messages, _ := d.ChatLog.SnapshotSince(nil)
	assert.Len(t, messages, 2)
}

// S3 — chat reconnect: after PUTting up to v5, a fresh subscribe
// carrying Parents: "v5" receives a snapshot containing all five
// messages.
func TestChatReconnectSnapshotContainsFullHistory(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	authHeader := bearerToken(t, secret, uuid.New().String())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("PUT", "/chat", strings.NewReader(
			`{"text":"msg","author":"a","timestamp":"2026-01-01T00:00:00Z"}`))
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	getReq := httptest.NewRequest("GET", "/chat", nil).WithContext(ctx)
	getReq.Header.Set("Subscribe", "true")
	getReq.Header.Set("Parents", `"v5"`)
	getRec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(getRec, getReq)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 5, strings.Count(getRec.Body.String(), `"text":"msg"`))
}

// S4 — document concurrent insert: two agents applying disjoint
// Insert ops at the root both converge to the same materialized text
// once both PUTs land.
func TestDocumentConcurrentInsertConverges(t *testing.T) {
	d, secret := newTestDeps(t)
	router := NewRouter(d)
	authHeader := bearerToken(t, secret, uuid.New().String())

	put := func(text string) {
		req := httptest.NewRequest("PUT", "/collab/doc-s4", strings.NewReader(
			`{"operations":[{"type":"Insert","position":0,"text":"`+text+`"}]}`))
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	done := make(chan struct{}, 2)
	go func() { put("X"); done <- struct{}{} }()
	go func() { put("Y"); done <- struct{}{} }()
	<-done
	<-done

	text, err := d.documents.get("doc-s4").Materialize(nil)
	require.NoError(t, err)
	assert.Len(t, text, 2)
	assert.Contains(t, []string{"XY", "YX"}, text)
}

func TestConversationMessagePutRequiresParticipantWhenStoreConfigured(t *testing.T) {
	secret := []byte("s3cr3t")
	mem := store.NewMemory()
	d := NewDeps(broadcast.New(8, time.Hour), auth.NewVerifier(secret), mem, nil)
	router := NewRouter(d)

	principal := uuid.New()
	authHeader := bearerToken(t, secret, principal.String())

	body := strings.NewReader(`{"text":"hi"}`)
	req := httptest.NewRequest("PUT", "/sync/conversations/conv-1/messages/msg-1", body)
	req.Header.Set("Authorization", authHeader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code, "body: %s", rec.Body.String())

	mem.AddParticipant("conv-1", principal)
	req2 := httptest.NewRequest("PUT", "/sync/conversations/conv-1/messages/msg-1", strings.NewReader(`{"text":"hi"}`))
	req2.Header.Set("Authorization", authHeader)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusOK, rec2.Code, "body: %s", rec2.Body.String())
}
