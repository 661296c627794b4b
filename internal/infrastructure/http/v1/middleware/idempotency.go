package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/core/apperror"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/infrastructure/storage/postgres"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"

	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// maxIdempotencyBodyBytes bounds the body hashed for a key; CSV uploads go up to the import limit.
const maxIdempotencyBodyBytes = 8 << 20

// IdempotencyStore records request keys and the responses to replay.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

// Idempotency replays the stored response of a repeated X-Idempotency-Key.
// Only POST, PUT and PATCH requests carrying the header are affected.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("could not read request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := sha256.Sum256(append([]byte(c.Request.URL.RawQuery+"\n"), body...))
		operation := c.Request.Method + " " + c.FullPath()
		userID := appctx.GetUserID(c.Request.Context())

		replay, err := store.AcquireKey(c.Request.Context(), key, userID, operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// CompleteIdempotency stores the successful response for replay. No-op without a key.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	finishIdempotency(c, statusCode, contentType, response, false)
}

func failIdempotency(c *gin.Context, statusCode int, response any) {
	finishIdempotency(c, statusCode, "application/json", response, true)
}

func finishIdempotency(c *gin.Context, statusCode int, contentType string, response any, failed bool) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return
	}
	value, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return
	}
	store, ok := value.(IdempotencyStore)
	if !ok {
		return
	}

	var body []byte
	switch r := response.(type) {
	case nil:
	case []byte:
		body = r
	default:
		var err error
		if body, err = json.Marshal(r); err != nil {
			return
		}
	}

	// Best-effort: a lost completion leaves the key pending until it goes stale.
	if failed {
		_ = store.FailKey(c.Request.Context(), key, statusCode, contentType, body)
		return
	}
	_ = store.CompleteKey(c.Request.Context(), key, statusCode, contentType, body)
}
