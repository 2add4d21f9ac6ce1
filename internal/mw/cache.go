package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache memoizes successful GET responses for catalog reads, which
// are identical for every caller. Invalidate is called after a catalog
// import so renamed rooms or new prices show up immediately.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{entries: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Invalidate drops every cached response.
func (rc *ResponseCache) Invalidate() {
	rc.entries.Flush()
}

// Handler serves cached responses and records fresh 2xx ones.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if v, ok := rc.entries.Get(key); ok {
			hit := v.(cachedResponse)
			for k, vals := range hit.headers {
				c.Writer.Header()[k] = vals
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(hit.status)
			c.Writer.Write(hit.body)
			c.Abort()
			return
		}
		c.Writer.Header().Set("X-Cache", "MISS")

		rec := &recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); status >= 200 && status < 300 {
			rc.entries.Set(key, cachedResponse{
				status:  status,
				headers: rec.Header().Clone(),
				body:    rec.body.Bytes(),
			}, rc.ttl)
		}
	}
}

// cacheKey is the path plus the query without the bearer token, so one
// entry serves every caller and no token is kept in memory.
func cacheKey(r *http.Request) string {
	q := r.URL.Query()
	q.Del(accessTokenParam)
	return r.URL.Path + "?" + q.Encode()
}
