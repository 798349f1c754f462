package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/founderbleed/bleed/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidate(t *testing.T) {
	Convey("Given cron expressions", t, func() {
		So(Validate("*/15 * * * *"), ShouldBeNil)
		So(Validate("@hourly"), ShouldBeNil)
		So(Validate("@every 1s"), ShouldBeNil)
		So(Validate("every quarter hour"), ShouldNotBeNil)
		So(Validate("* * *"), ShouldNotBeNil)
	})
}

func TestScheduler(t *testing.T) {
	_ = logger.Init()

	Convey("Given a scheduler", t, func() {
		s := New(WithJobTimeout(time.Second), WithLocation(time.UTC))

		Convey("When adding a job with a bad expression", func() {
			err := s.Add("refresh", "nonsense", func(context.Context) error { return nil })

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When running a job by name", func() {
			var runs int32
			So(s.Add("refresh", "@hourly", func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				_, ok := ctx.Deadline()
				So(ok, ShouldBeTrue)
				return nil
			}), ShouldBeNil)

			Convey("Then it runs once with a deadline", func() {
				So(s.RunNow("refresh"), ShouldBeNil)
				So(atomic.LoadInt32(&runs), ShouldEqual, 1)
			})
		})

		Convey("When a job fails", func() {
			boom := errors.New("boom")
			So(s.Add("broken", "@hourly", func(context.Context) error { return boom }), ShouldBeNil)

			Convey("Then RunNow returns its error", func() {
				So(errors.Is(s.RunNow("broken"), boom), ShouldBeTrue)
			})
		})

		Convey("When running an unknown job", func() {
			Convey("Then ErrUnknownJob is returned", func() {
				So(errors.Is(s.RunNow("missing"), ErrUnknownJob), ShouldBeTrue)
			})
		})

		Convey("When started with a one second schedule", func() {
			fired := make(chan struct{}, 4)
			So(s.Add("tick", "@every 1s", func(context.Context) error {
				fired <- struct{}{}
				return nil
			}), ShouldBeNil)
			s.Start()

			Convey("Then the job fires and Stop returns", func() {
				select {
				case <-fired:
				case <-time.After(3 * time.Second):
					So("job never fired", ShouldBeEmpty)
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				So(s.Stop(ctx), ShouldBeNil)
			})
		})
	})
}
