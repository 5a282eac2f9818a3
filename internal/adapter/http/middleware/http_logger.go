package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	bodyLimit   = 8 * 1024 // 8KB, request and response alike
	redacted    = "***redacted***"
	truncMarker = "...truncated..."
)

var secretKeys = map[string]bool{
	"password":      true,
	"authorization": true,
	"token":         true,
	"access_token":  true,
	"secret":        true,
	"client_secret": true,
}

type bodyLogWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	if remain := bodyLimit - w.buf.Len(); remain > 0 {
		if len(b) > remain {
			w.buf.Write(b[:remain])
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func scrub(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, val := range v {
			if secretKeys[strings.ToLower(k)] {
				v[k] = redacted
				continue
			}
			v[k] = scrub(val)
		}
		return v
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
		return v
	default:
		return v
	}
}

// redactJSON masks secret-looking keys; anything that is not JSON is returned as is.
func redactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	b, err := json.Marshal(scrub(m))
	if err != nil {
		return raw
	}
	return b
}

// peekBody reads up to bodyLimit bytes for logging and puts the full body back.
func peekBody(r *http.Request) (logged []byte, truncated bool) {
	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	if len(raw) > bodyLimit {
		return raw[:bodyLimit], true
	}
	return raw, false
}

// Logging returns a Gin middleware that logs request/response and injects a slog.Logger into the context.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", reqID)
		}
		c.Header("X-Request-Id", reqID)

		l := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"route", c.FullPath(), // empty if no route matched
			"remote", c.ClientIP(),
		)
		logging.With(c, l)

		var reqBody string
		if strings.Contains(c.GetHeader("Content-Type"), "application/json") && c.Request.Body != nil {
			body, truncated := peekBody(c.Request)
			if truncated {
				reqBody = string(body) + truncMarker
			} else {
				reqBody = string(redactJSON(body))
			}
		}

		blw := &bodyLogWriter{ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
			"resp_bytes", c.Writer.Size(),
		}
		if reqBody != "" {
			attrs = append(attrs, "req_body", reqBody)
		}
		if strings.Contains(c.Writer.Header().Get("Content-Type"), "application/json") {
			resp := string(redactJSON(blw.buf.Bytes()))
			if blw.buf.Len() >= bodyLimit {
				resp += truncMarker
			}
			attrs = append(attrs, "resp_body", resp)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		// the auth middleware may have enriched the logger with the subject
		l = logging.From(c)
		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			l.ErrorContext(ctx, "http_request", attrs...)
		case status >= http.StatusBadRequest:
			l.WarnContext(ctx, "http_request", attrs...)
		default:
			l.InfoContext(ctx, "http_request", attrs...)
		}
	}
}
