package newsletter

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"waffle-chat/internal/mocks"
	"waffle-chat/internal/observability"
)

func newService(t *testing.T, existing string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	blocklist := filepath.Join(dir, "blocklist.txt")
	subscribers := filepath.Join(dir, "subscribers.txt")
	require.NoError(t, os.WriteFile(blocklist, []byte("mailinator.com\n\n# comment\ntrashmail.com\n"), 0o600))
	if existing != "" {
		require.NoError(t, os.WriteFile(subscribers, []byte(existing), 0o600))
	}
	svc, err := NewService("wafflechat", subscribers, blocklist)
	require.NoError(t, err)
	return svc, subscribers
}

func TestSubscribeAppendsLine(t *testing.T) {
	svc, path := newService(t, "")

	stored, err := svc.Subscribe(context.Background(), " Ann@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", stored)
	_, err = svc.Subscribe(context.Background(), "bo@example.org")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com\nbo@example.org\n", string(data))
	assert.Equal(t, 2, svc.Count())
}

func TestSubscribeRejections(t *testing.T) {
	svc, _ := newService(t, "old@example.com\n")
	ctx := context.Background()

	assert.ErrorIs(t, subscribeErr(ctx, svc, "not-an-email"), ErrInvalidEmail)
	assert.ErrorIs(t, subscribeErr(ctx, svc, "a b@example.com"), ErrInvalidEmail)
	assert.ErrorIs(t, subscribeErr(ctx, svc, "x@mailinator.com"), ErrDisposableEmail)
	assert.ErrorIs(t, subscribeErr(ctx, svc, "old@example.com"), ErrAlreadySubscribed)
	assert.Equal(t, 1, svc.Count())
}

func subscribeErr(ctx context.Context, svc *Service, email string) error {
	_, err := svc.Subscribe(ctx, email)
	return err
}

func TestMissingListsStartEmpty(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService("k", filepath.Join(dir, "subs.txt"), filepath.Join(dir, "none.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Count())
	assert.True(t, svc.CheckKey("k"))
	assert.False(t, svc.CheckKey("K"))
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(ctx context.Context, key string) (bool, error) { return s.allowed, s.err }

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerResponses(t *testing.T) {
	svc, path := newService(t, "")
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, observability.EventSubscribed, mock.Anything).Return(nil).Once()
	r := newRouter(NewHandler(svc, nil, publisher))

	cases := []struct {
		name   string
		key    string
		body   string
		status int
		msg    string
	}{
		{"wrong key", "nope", `{"email":"a@example.com"}`, http.StatusForbidden, MsgForbidden},
		{"missing key", "", `{"email":"a@example.com"}`, http.StatusForbidden, MsgForbidden},
		{"bad email", "wafflechat", `{"email":"a@example"}`, http.StatusBadRequest, MsgInvalid},
		{"no body", "wafflechat", `nope`, http.StatusBadRequest, MsgInvalid},
		{"disposable", "wafflechat", `{"email":"a@trashmail.com"}`, http.StatusBadRequest, MsgDisposable},
		{"accepted", "wafflechat", `{"email":"a@example.com"}`, http.StatusOK, MsgSubscribed},
		{"duplicate", "wafflechat", `{"email":"A@example.com"}`, http.StatusBadRequest, MsgDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(r, tc.key, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"message":"`+tc.msg+`"}`, rec.Body.String())
		})
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com\n", string(data))
	publisher.AssertExpectations(t)
}

func TestHandlerPublishesStoredEmail(t *testing.T) {
	svc, _ := newService(t, "")
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, observability.EventSubscribed, mock.MatchedBy(func(ev observability.EventEnvelope) bool {
		payload, ok := ev.Payload.(SubscribedEvent)
		return ok && payload.Email == "foo@x.com"
	})).Return(nil).Once()
	r := newRouter(NewHandler(svc, nil, publisher))

	rec := post(r, "wafflechat", `{"email":" Foo@X.com "}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestHandlerRateLimit(t *testing.T) {
	svc, _ := newService(t, "")

	r := newRouter(NewHandler(svc, stubLimiter{allowed: false}, nil))
	rec := post(r, "wafflechat", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	r = newRouter(NewHandler(svc, stubLimiter{err: errors.New("redis down")}, nil))
	rec = post(r, "wafflechat", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	l := NewRedisLimiter(rdb, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterRepairsCounterWithoutTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	require.NoError(t, mr.Set("newsletter:rl:10.0.0.9", "5"))
	l := NewRedisLimiter(rdb, 2, time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("newsletter:rl:10.0.0.9"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientAgainstHandler(t *testing.T) {
	svc, _ := newService(t, "")
	srv := httptest.NewServer(newRouter(NewHandler(svc, nil, nil)))
	t.Cleanup(srv.Close)

	msg, err := NewClient(srv.URL+"/", "wafflechat").Subscribe(context.Background(), "c@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgSubscribed, msg)

	_, err = NewClient(srv.URL, "wrong").Subscribe(context.Background(), "d@example.com")
	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusForbidden, relayErr.Status)
	assert.Equal(t, MsgForbidden, relayErr.Message)
}
