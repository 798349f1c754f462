package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/founderbleed/bleed/internal/adapters/mq/queue"
	worker "github.com/founderbleed/bleed/internal/adapters/mq/worker"
	logging "github.com/founderbleed/bleed/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockRunner struct {
	mu     sync.Mutex
	seen   []string
	errs   map[string]error
	called chan string
}

func newMockRunner() *mockRunner {
	return &mockRunner{errs: make(map[string]error), called: make(chan string, 10)}
}

func (r *mockRunner) ProcessAudit(ctx context.Context, job queue.Job) error {
	r.mu.Lock()
	r.seen = append(r.seen, job.AuditID)
	err := r.errs[job.AuditID]
	r.mu.Unlock()
	r.called <- job.AuditID
	return err
}

func (r *mockRunner) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = err
}

func (r *mockRunner) processed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func waitFor(ch <-chan string) string {
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		return ""
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, runner,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Get()),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And jobs arrive", func() {
				q.jobs <- queue.Job{AuditID: "a1", UserID: "u1"}
				runner.fail("a2", errors.New("boom"))
				q.jobs <- queue.Job{AuditID: "a2", UserID: "u1"}
				q.jobs <- queue.Job{AuditID: "a3", UserID: "u1"}

				convey.Convey("Then a failing job does not stop the loop", func() {
					convey.So(waitFor(runner.called), convey.ShouldEqual, "a1")
					convey.So(waitFor(runner.called), convey.ShouldEqual, "a2")
					convey.So(waitFor(runner.called), convey.ShouldEqual, "a3")
				})
			})

			convey.Convey("And shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then the loop exits", func() {
				select {
				case <-w.Done():
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		runner := newMockRunner()
		pool := worker.NewPool(3, q, runner)
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx := context.Background()
		pool.Start(ctx)

		for _, id := range []string{"a", "b", "c", "d"} {
			convey.So(q.Enqueue(ctx, queue.Job{AuditID: id}), convey.ShouldBeNil)
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(ctx)

			convey.Convey("Then every queued job was processed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(runner.processed(), convey.ShouldHaveLength, 4)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockRunner())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

type deadlineRunner struct {
	deadlines chan bool
}

func (r *deadlineRunner) ProcessAudit(ctx context.Context, _ queue.Job) error {
	_, ok := ctx.Deadline()
	r.deadlines <- ok
	return nil
}

func TestJobTimeout(t *testing.T) {
	convey.Convey("Given a pool with a job timeout", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := &deadlineRunner{deadlines: make(chan bool, 1)}
		pool := worker.NewPool(1, q, runner, worker.WithJobTimeout(time.Second))
		pool.Start(context.Background())
		defer func() { _ = pool.Shutdown(context.Background()) }()

		q.jobs <- queue.Job{AuditID: "slow"}

		convey.Convey("Then each job runs under a deadline", func() {
			select {
			case ok := <-runner.deadlines:
				convey.So(ok, convey.ShouldBeTrue)
			case <-time.After(time.Second):
				t.Fatal("job was not processed")
			}
		})
	})
}
