package pipectx

import (
	"net/http"
)

// headerCarrierHTTP adapts http.Header to HeaderCarrier.
type headerCarrierHTTP http.Header

func (h headerCarrierHTTP) Get(key string) string { return http.Header(h).Get(key) }

func (h headerCarrierHTTP) Set(key, value string) { http.Header(h).Set(key, value) }

// statusWriter emits the x-tpf-cache-status header just before the first
// byte of the response body, when the handler has finished deciding.
type statusWriter struct {
	http.ResponseWriter
	req         *http.Request
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if status, ok := CacheStatusOf(w.req.Context()); ok {
			w.Header().Set(HeaderCacheStatus, string(status))
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming handlers keep
// working behind the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware extracts the pipeline context from request headers, binds it
// for the duration of the handler, and reports the recorded cache status
// on the response. The slot is released on every exit path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc := Extract(headerCarrierHTTP(r.Header))
		ctx, release := Bind(r.Context(), pc)
		defer release()

		sw := &statusWriter{ResponseWriter: w, req: r.WithContext(ctx)}
		next.ServeHTTP(sw, sw.req)
	})
}

// transport injects the bound pipeline context into outgoing requests and
// records the cache status the downstream hop reports.
type transport struct {
	next http.RoundTripper
}

// NewTransport wraps an http.RoundTripper with pipeline context
// propagation. A nil next falls back to http.DefaultTransport.
func NewTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{next: next}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	Inject(req.Context(), headerCarrierHTTP(req.Header))
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if status := CacheStatus(resp.Header.Get(HeaderCacheStatus)); status.Valid() {
		RecordCacheStatus(req.Context(), status)
	}
	return resp, nil
}
