package sensors_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micro-nova/panel-go/internal/sensors"
)

type reading struct {
	v    float64
	unit string
	err  error
}

type fakeReader struct {
	mu   sync.Mutex
	seq  []reading
	next int
}

func (f *fakeReader) LightLevel(context.Context) (float64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.seq[min(f.next, len(f.seq)-1)]
	f.next++
	return r.v, r.unit, r.err
}

func TestPollerReportsChanges(t *testing.T) {
	r := &fakeReader{seq: []reading{
		{v: 10.4, unit: "lux"},
		{v: 9.6, unit: "lux"}, // rounds to 10, no change
		{err: errors.New("gone")},
		{v: 200, unit: "vendor"},
		{v: 0, unit: "lux"},
	}}
	var mu sync.Mutex
	var got []int
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := sensors.NewPoller(r, time.Millisecond, func(_ context.Context, lux int) {
		mu.Lock()
		got = append(got, lux)
		mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never reported the second level")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 10 || got[1] != 0 {
		t.Errorf("reported %v, want [10 0]", got)
	}
}
