package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder map[string]*domain.TrackingBundle

func (f stubFinder) FindBundleByCode(_ context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error) {
	if b, ok := f[string(codeType)+":"+code]; ok {
		return b, nil
	}
	return nil, attribution.ErrBundleNotFound
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []tasks.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, t tasks.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) payloads(t *testing.T) []tasks.RecordEventPayload {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []tasks.RecordEventPayload
	for _, task := range q.tasks {
		require.Equal(t, tasks.TypeRecordEvent, task.Type)
		var p tasks.RecordEventPayload
		require.NoError(t, task.Decode(&p))
		out = append(out, p)
	}
	return out
}

func newTestHandler() (*Handler, *recordingQueue) {
	finder := stubFinder{
		"short_link:aB3_x9Q": {ID: "b-1", ShortLinkCode: "aB3_x9Q", TrackingURL: "https://shop.example.com/?utm_source=creator", IsActive: true},
	}
	q := &recordingQueue{}
	return NewHandler(finder, q), q
}

func TestRedirect(t *testing.T) {
	h, q := newTestHandler()
	srv := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/s/aB3_x9Q", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("CloudFront-Viewer-Country", "us")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://shop.example.com/?utm_source=creator", rec.Header().Get("Location"))

	ps := q.payloads(t)
	require.Len(t, ps, 1)
	assert.Equal(t, "aB3_x9Q", ps[0].ShortCode)
	assert.Equal(t, "click", ps[0].EventType)
	assert.Equal(t, "redirect", ps[0].Source)
	assert.Equal(t, "US", ps[0].Region)
	assert.Len(t, ps[0].UserHash, 32)
}

func TestRedirectUnknownCode(t *testing.T) {
	h, q := newTestHandler()
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, q.payloads(t))
}

func TestPixel(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  int
		check func(t *testing.T, p tasks.RecordEventPayload)
	}{
		{name: "no code", query: "", want: 0},
		{name: "page view by default", query: "?aff=jane1a2b", want: 1, check: func(t *testing.T, p tasks.RecordEventPayload) {
			assert.Equal(t, "page_view", p.EventType)
			assert.Equal(t, "pixel", p.Source)
			assert.Equal(t, "jane1a2b", p.AffiliateCode)
		}},
		{name: "purchase", query: "?cp=SUMMER10&t=purchase&oid=1001&v=59.9&r=ca", want: 1, check: func(t *testing.T, p tasks.RecordEventPayload) {
			assert.Equal(t, "purchase", p.EventType)
			assert.Equal(t, "1001", p.OrderID)
			require.NotNil(t, p.OrderValue)
			assert.Equal(t, "59.9", p.OrderValue.String())
			assert.Equal(t, "CA", p.Region)
		}},
		{name: "unknown type", query: "?aff=X&t=signup", want: 0},
		{name: "negative value", query: "?aff=X&t=purchase&v=-1", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, q := newTestHandler()
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t/pixel.gif"+tc.query, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
			assert.Equal(t, pixelGIF, rec.Body.Bytes())

			ps := q.payloads(t)
			require.Len(t, ps, tc.want)
			if tc.check != nil {
				tc.check(t, ps[0])
			}
		})
	}
}

func TestVisitorHashIsStable(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("X-Real-Ip", "198.51.100.7")
	a.Header.Set("User-Agent", "test")
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.Header.Set("X-Real-Ip", "198.51.100.7")
	b.Header.Set("User-Agent", "test")

	assert.Equal(t, visitorHash(a), visitorHash(b))
	b.Header.Set("User-Agent", "other")
	assert.NotEqual(t, visitorHash(a), visitorHash(b))
}
