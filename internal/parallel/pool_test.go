package parallel

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

func captureLog(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	old := logging.GetLogger()
	logging.SetLogger(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { logging.SetLogger(old) })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPoolRunsAllTasks(t *testing.T) {
	pool, err := NewPool(8)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Close()

	var counter atomic.Int64
	for i := 0; i < 200; i++ {
		pool.Submit(Task{Phase: "test", Page: uint32(i), Run: func() error {
			counter.Add(1)
			return nil
		}})
	}
	pool.Wait(time.Millisecond)

	if counter.Load() != 200 {
		t.Errorf("counter = %d, want 200", counter.Load())
	}
	if pool.Pending() != 0 {
		t.Errorf("Pending() = %d after Wait", pool.Pending())
	}
}

func TestPoolSynchronous(t *testing.T) {
	pool, _ := NewPool(1)
	defer pool.Close()
	if !pool.Synchronous() {
		t.Fatal("pool of size 1 should be synchronous")
	}

	var order []int
	for i := 0; i < 5; i++ {
		pool.Submit(Task{Run: func() error {
			order = append(order, i)
			return nil
		}})
		// Inline execution: the task has already run.
		if len(order) != i+1 {
			t.Fatalf("task %d did not run inline", i)
		}
	}
	pool.Wait(0)
}

func TestPoolIsolatesFailures(t *testing.T) {
	logBuf := captureLog(t)
	var hooked atomic.Int64
	pool, _ := NewPool(4, WithFailureHook(func(Task, any) { hooked.Add(1) }))
	defer pool.Close()

	var done atomic.Int64
	for i := 0; i < 20; i++ {
		page := uint32(i)
		pool.Submit(Task{Phase: "carve", Page: page, Run: func() error {
			switch page {
			case 3:
				panic("corrupt page")
			case 7:
				return errors.New("bad cell")
			}
			done.Add(1)
			return nil
		}})
	}
	pool.Wait(time.Millisecond)

	if done.Load() != 18 {
		t.Errorf("completed = %d, want 18", done.Load())
	}
	if pool.Failures() != 2 || hooked.Load() != 2 {
		t.Errorf("Failures() = %d, hook = %d", pool.Failures(), hooked.Load())
	}
	out := logBuf.String()
	if !strings.Contains(out, "panic: corrupt page") || !strings.Contains(out, "bad cell") {
		t.Errorf("failures not logged: %s", out)
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool, _ := NewPool(2)
	pool.Close()
	if pool.Submit(Task{Run: func() error { return nil }}) {
		t.Error("Submit() after Close should fail")
	}
	pool.Close()
}

func TestNewPoolDefaults(t *testing.T) {
	pool, err := NewPool(0)
	if err != nil || pool.Workers() != 1 {
		t.Errorf("NewPool(0) = %d workers, %v", pool.Workers(), err)
	}
	if _, err := NewPool(MaxWorkers + 1); !errors.Is(err, ErrTooManyWorkers) {
		t.Errorf("NewPool(MaxWorkers+1) error = %v", err)
	}
}
