package server

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

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func tracked(r *recorder, name string, startErr error) Component {
	return Func(name,
		func(context.Context) error {
			if startErr != nil {
				return startErr
			}
			r.add("start " + name)
			return nil
		},
		func(context.Context) error {
			r.add("stop " + name)
			return nil
		},
	)
}

func TestRunContextLifecycle(t *testing.T) {
	r := &recorder{}
	app := New(nil, nil,
		WithComponent(tracked(r, "queue", nil)),
		WithComponent(tracked(r, "consumer", nil)),
		WithCloser("store", func() error { r.add("close store"); return nil }),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	assert.Eventually(t, func() bool { return len(r.list()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"start queue", "start consumer", "stop consumer", "stop queue", "close store"}, r.list())
}

func TestRunContextStartFailure(t *testing.T) {
	r := &recorder{}
	app := New(nil, nil,
		WithComponent(tracked(r, "queue", nil)),
		WithComponent(tracked(r, "consumer", errors.New("no brokers"))),
		WithCloser("store", func() error { r.add("close store"); return nil }),
	)

	err := app.RunContext(context.Background())
	assert.ErrorContains(t, err, "start consumer")
	assert.Equal(t, []string{"start queue", "stop queue", "close store"}, r.list())
}

func TestTicker(t *testing.T) {
	var n atomic.Int32
	c := Ticker("sweep", 5*time.Millisecond, func(context.Context) { n.Add(1) })
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, "sweep", c.Name())
}
