package api

import (
	"context"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/founderbleed/bleed/pkg/logger"
)

func TestMemoryRateLimiter(t *testing.T) {
	Convey("Given a memory limiter on a fake clock", t, func() {
		now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
		rl := newMemoryRateLimiter(func() time.Time { return now })
		defer rl.Close()
		ctx := context.Background()

		Convey("Then requests beyond the limit are refused until the window ends", func() {
			So(rl.Allow(ctx, "k", 2, time.Minute).Allowed, ShouldBeTrue)
			So(rl.Allow(ctx, "k", 2, time.Minute).Allowed, ShouldBeTrue)
			d := rl.Allow(ctx, "k", 2, time.Minute)
			So(d.Allowed, ShouldBeFalse)
			So(d.WindowEnd.Equal(now.Add(time.Minute)), ShouldBeTrue)

			now = now.Add(61 * time.Second)
			So(rl.Allow(ctx, "k", 2, time.Minute).Allowed, ShouldBeTrue)
		})

		Convey("Then a non-positive limit always allows", func() {
			for i := 0; i < 5; i++ {
				So(rl.Allow(ctx, "k", 0, time.Minute).Allowed, ShouldBeTrue)
			}
		})

		Convey("Then cleanup drops expired windows", func() {
			rl.Allow(ctx, "old", 1, time.Second)
			rl.cleanup(now.Add(time.Minute))
			rl.mu.Lock()
			_, ok := rl.entries["old"]
			rl.mu.Unlock()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRedisRateLimiterUnreachable(t *testing.T) {
	Convey("Given no Redis at the address", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := NewRedisRateLimiter(ctx, "127.0.0.1:1", "", 0)

		Convey("Then construction fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

// scriptedRedis answers commands in place of a server and records them.
type scriptedRedis struct {
	mu      sync.Mutex
	counter int64
	ttl     time.Duration
	ttlErr  error
	expires []time.Duration
}

func (h *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *scriptedRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		switch c := cmd.(type) {
		case *redis.IntCmd:
			h.counter++
			c.SetVal(h.counter)
		case *redis.DurationCmd:
			if h.ttlErr != nil {
				c.SetErr(h.ttlErr)
				return h.ttlErr
			}
			c.SetVal(h.ttl)
		case *redis.BoolCmd:
			secs := time.Duration(c.Args()[2].(int64)) * time.Second
			h.expires = append(h.expires, secs)
			h.ttl = secs
			c.SetVal(true)
		}
		return nil
	}
}

func (h *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisRateLimiterExpiry(t *testing.T) {
	Convey("Given a Redis limiter", t, func() {
		ctx := context.Background()
		h := &scriptedRedis{ttl: noExpiry}
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		client.AddHook(h)
		rl := &redisRateLimiter{client: client, logger: logger.Get()}
		defer rl.Close()

		Convey("When the first request opens a window", func() {
			d := rl.Allow(ctx, "k", 2, time.Minute)

			Convey("Then the window expiry is set once", func() {
				So(d.Allowed, ShouldBeTrue)
				So(d.Count, ShouldEqual, 1)
				So(h.expires, ShouldResemble, []time.Duration{time.Minute})

				h.ttl = 30 * time.Second
				d = rl.Allow(ctx, "k", 2, time.Minute)
				So(h.expires, ShouldHaveLength, 1)
				So(d.WindowEnd, ShouldHappenWithin, time.Second, time.Now().Add(30*time.Second))
			})
		})

		Convey("When a later request finds the counter without an expiry", func() {
			h.counter = 4
			d := rl.Allow(ctx, "k", 2, time.Minute)

			Convey("Then the expiry is restored", func() {
				So(d.Allowed, ShouldBeFalse)
				So(d.Count, ShouldEqual, 5)
				So(h.expires, ShouldResemble, []time.Duration{time.Minute})
			})
		})

		Convey("When TTL fails on a new window", func() {
			h.ttlErr = redis.ErrClosed
			d := rl.Allow(ctx, "k", 2, time.Minute)

			Convey("Then the expiry is still set", func() {
				So(d.Allowed, ShouldBeTrue)
				So(h.expires, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given TTL replies", t, func() {
		ttl, repair := windowTTL(noExpiry, time.Minute)
		So(ttl, ShouldEqual, time.Minute)
		So(repair, ShouldBeTrue)

		ttl, repair = windowTTL(-2, time.Minute)
		So(ttl, ShouldEqual, time.Minute)
		So(repair, ShouldBeFalse)

		ttl, repair = windowTTL(20*time.Second, time.Minute)
		So(ttl, ShouldEqual, 20*time.Second)
		So(repair, ShouldBeFalse)
	})
}
