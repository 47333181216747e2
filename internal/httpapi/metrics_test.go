package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusRecorderCapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 200}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot {
		t.Fatalf("status=%d", sr.status)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("underlying code=%d", rec.Code)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 507: "507"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d)=%q want %q", n, got, want)
		}
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/some/raw/path", nil)
	if got := routePatternOrPath(req); got != "/some/raw/path" {
		t.Fatalf("path=%q", got)
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	w := httptest.NewRecorder()
	MetricsMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestIncrementBackpressureEmptyReason(t *testing.T) {
	// Must not panic on an empty label.
	IncrementBackpressure("")
	IncrementBackpressure("queue_full")
}
