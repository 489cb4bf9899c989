package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	"github.com/epiqlabs/epiq/internal/adapters/fit/worker"
	"github.com/epiqlabs/epiq/pkg/logger"
)

// recordingRunner counts fits and can fail on demand.
type recordingRunner struct {
	mu   sync.Mutex
	jobs []queue.Job
	fail bool
	ran  chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{ran: make(chan struct{}, 16)}
}

func (r *recordingRunner) RunFit(_ context.Context, job queue.Job) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	fail := r.fail
	r.mu.Unlock()
	r.ran <- struct{}{}
	if fail {
		return errors.New("sampler exploded")
	}
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestWorker(t *testing.T) {
	Convey("Given a fit worker over an in-memory queue", t, func() {
		_ = logger.Init()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue()
		runner := newRecordingRunner()
		w := worker.New(q, runner)
		go w.Run(ctx)

		Convey("When a fit is requested", func() {
			job, ok := q.Enqueue(ctx, "test")
			So(ok, ShouldBeTrue)

			Convey("Then the worker runs it", func() {
				select {
				case <-runner.ran:
				case <-time.After(2 * time.Second):
					t.Fatal("fit never ran")
				}
				So(runner.count(), ShouldEqual, 1)
				So(runner.jobs[0].ID, ShouldEqual, job.ID)
			})
		})

		Convey("When the runner fails", func() {
			runner.fail = true
			_, ok := q.Enqueue(ctx, "doomed")
			So(ok, ShouldBeTrue)

			Convey("Then the worker logs and keeps consuming", func() {
				select {
				case <-runner.ran:
				case <-time.After(2 * time.Second):
					t.Fatal("fit never ran")
				}
				runner.fail = false
				_, ok := q.Enqueue(ctx, "recovery")
				So(ok, ShouldBeTrue)
				select {
				case <-runner.ran:
				case <-time.After(2 * time.Second):
					t.Fatal("worker stopped after failure")
				}
				So(runner.count(), ShouldEqual, 2)
			})
		})

		Convey("When the worker is shut down", func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
			defer cancelShutdown()
			So(w.Shutdown(shutdownCtx), ShouldBeNil)
		})
	})
}
