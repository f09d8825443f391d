package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"contractit/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

const inFlight = "pending"

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a POST that carries an
// Idempotency-Key already seen for the same user. A nil client disables it.
func Idempotency(rdb *redis.Client, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			var userID uint
			if user := GetUserFromContext(r.Context()); user != nil {
				userID = user.ID
			}
			redisKey := fmt.Sprintf("idem:%d:%s:%s", userID, r.URL.Path, key)
			ctx := r.Context()
			log := logger.FromContext(ctx, nil)

			ok, err := rdb.SetNX(ctx, redisKey, inFlight, ttl).Result()
			if err != nil {
				// Redis unavailable: process normally.
				log.Warn("idempotency store unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				replay(w, rdb, r, redisKey)
				return
			}

			// A panicking handler releases the key before Recoverer sees it.
			defer func() {
				if p := recover(); p != nil {
					rdb.Del(context.WithoutCancel(ctx), redisKey)
					panic(p)
				}
			}()

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status >= 500 || rec.status == 0 {
				rdb.Del(ctx, redisKey)
				return
			}
			data, _ := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err := rdb.Set(ctx, redisKey, data, ttl).Err(); err != nil {
				log.Warn("failed to store idempotent response", zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, rdb *redis.Client, r *http.Request, redisKey string) {
	val, err := rdb.Get(r.Context(), redisKey).Bytes()
	if err != nil || string(val) == inFlight {
		writeJSONError(w, http.StatusConflict, "A request with this idempotency key is already being processed")
		return
	}
	var resp storedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		writeJSONError(w, http.StatusConflict, "A request with this idempotency key was already processed")
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
