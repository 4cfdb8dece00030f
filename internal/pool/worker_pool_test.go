package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu   sync.Mutex
	errs map[string]error
}

func (s *sinkRecorder) sink(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[name] = err
}

func (s *sinkRecorder) get(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[name]
}

func TestWorkerPool_Go(t *testing.T) {
	t.Run("执行所有任务", func(t *testing.T) {
		p := NewWorkerPool(Options{MaxWorkers: 2, QueueSize: 4}, nil, nil)
		p.Start()
		defer p.Stop(time.Second)

		var n atomic.Int32
		for i := 0; i < 20; i++ {
			p.Go("count", func(context.Context) error {
				n.Add(1)
				return nil
			})
		}
		require.True(t, p.Wait(2*time.Second))
		assert.Equal(t, int32(20), n.Load())
	})

	t.Run("错误和 panic 交给错误接收器", func(t *testing.T) {
		rec := &sinkRecorder{}
		p := NewWorkerPool(Options{MaxWorkers: 1, QueueSize: 1}, rec.sink, nil)
		p.Start()
		defer p.Stop(time.Second)

		p.Go("fails", func(context.Context) error { return errors.New("smtp down") })
		p.Go("panics", func(context.Context) error { panic("boom") })
		require.True(t, p.Wait(2*time.Second))

		assert.EqualError(t, rec.get("fails"), "smtp down")
		assert.EqualError(t, rec.get("panics"), "panic: boom")
	})

	t.Run("提交从不阻塞", func(t *testing.T) {
		p := NewWorkerPool(Options{MaxWorkers: 1, QueueSize: 0}, nil, nil)
		p.Start()
		defer p.Stop(time.Second)

		release := make(chan struct{})
		start := time.Now()
		for i := 0; i < 5; i++ {
			p.Go("slow", func(context.Context) error {
				<-release
				return nil
			})
		}
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.False(t, p.Wait(50*time.Millisecond))

		close(release)
		assert.True(t, p.Wait(2*time.Second))
	})

	t.Run("任务超时", func(t *testing.T) {
		rec := &sinkRecorder{}
		p := NewWorkerPool(Options{MaxWorkers: 1, QueueSize: 1, TaskTimeout: 20 * time.Millisecond}, rec.sink, nil)
		p.Start()
		defer p.Stop(time.Second)

		p.Go("hung", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.True(t, p.Wait(2*time.Second))
		assert.ErrorIs(t, rec.get("hung"), context.DeadlineExceeded)
	})

	t.Run("空池立即返回", func(t *testing.T) {
		p := NewWorkerPool(Options{}, nil, nil)
		p.Start()
		defer p.Stop(time.Second)
		assert.True(t, p.Wait(time.Millisecond))
	})

	t.Run("Wait 与 Go 并发", func(t *testing.T) {
		p := NewWorkerPool(Options{MaxWorkers: 2, QueueSize: 2}, nil, nil)
		p.Start()
		defer p.Stop(time.Second)

		var n atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					p.Go("count", func(context.Context) error {
						n.Add(1)
						return nil
					})
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					p.Wait(time.Millisecond)
				}
			}()
		}
		wg.Wait()
		require.True(t, p.Wait(2*time.Second))
		assert.Equal(t, int32(100), n.Load())
	})

	t.Run("停止后丢弃任务", func(t *testing.T) {
		rec := &sinkRecorder{}
		p := NewWorkerPool(Options{MaxWorkers: 1}, rec.sink, nil)
		p.Start()
		assert.True(t, p.Stop(time.Second))

		ran := false
		p.Go("late", func(context.Context) error {
			ran = true
			return nil
		})
		assert.False(t, ran)
		assert.Error(t, rec.get("late"))
	})
}
