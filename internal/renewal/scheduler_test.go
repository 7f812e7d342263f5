package renewal

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy_manager/internal/access"
	"proxy_manager/internal/model"
)

type fakeSource struct {
	mu     sync.Mutex
	certs  []model.Certificate
	before []time.Time
}

func (f *fakeSource) ListRenewable(_ context.Context, before time.Time) ([]model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = append(f.before, before)
	return f.certs, nil
}

type fakeRenewer struct {
	mu       sync.Mutex
	calls    []int
	roles    []access.Role
	fail     map[int]bool
	entered  chan int
	release  chan struct{}
	blocking bool
}

func (f *fakeRenewer) Renew(ctx context.Context, id int) (*model.Certificate, error) {
	p, _ := access.FromContext(ctx)
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.roles = append(f.roles, p.Role)
	blocking := f.blocking
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- id
	}
	if blocking {
		<-f.release
	}
	if f.fail[id] {
		return nil, errors.New("challenge failed")
	}
	return &model.Certificate{}, nil
}

func (f *fakeRenewer) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func certs(ids ...int) []model.Certificate {
	out := make([]model.Certificate, len(ids))
	for i, id := range ids {
		out[i].ID = id
	}
	return out
}

func TestTick_RenewsInOrderAndContinuesAfterFailure(t *testing.T) {
	source := &fakeSource{certs: certs(3, 1, 2)}
	renewer := &fakeRenewer{fail: map[int]bool{1: true}}
	s := NewScheduler(source, renewer, Config{Logger: quietLogger()})
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.True(t, s.Tick(context.Background()))
	assert.Equal(t, []int{3, 1, 2}, renewer.Calls())
	require.Len(t, source.before, 1)
	assert.Equal(t, now.Add(30*24*time.Hour), source.before[0])
	for _, role := range renewer.roles {
		assert.Equal(t, access.RoleSystem, role)
	}
	assert.False(t, s.Busy())
}

func TestTick_OverlappingTickIsDropped(t *testing.T) {
	source := &fakeSource{certs: certs(7)}
	renewer := &fakeRenewer{entered: make(chan int, 1), release: make(chan struct{}), blocking: true}
	s := NewScheduler(source, renewer, Config{Logger: quietLogger()})

	done := make(chan bool)
	go func() { done <- s.Tick(context.Background()) }()

	select {
	case <-renewer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never reached the renewer")
	}
	assert.True(t, s.Busy())
	assert.False(t, s.Tick(context.Background()))

	close(renewer.release)
	assert.True(t, <-done)
	assert.Equal(t, []int{7}, renewer.Calls())
	assert.Len(t, source.before, 1)
}

func TestStart_SweepsImmediately(t *testing.T) {
	source := &fakeSource{certs: certs(4)}
	renewer := &fakeRenewer{entered: make(chan int, 1)}
	s := NewScheduler(source, renewer, Config{Enabled: true, Interval: time.Hour, Logger: quietLogger()})

	s.Start()
	defer s.Stop()

	select {
	case id := <-renewer.entered:
		assert.Equal(t, 4, id)
	case <-time.After(5 * time.Second):
		t.Fatal("no sweep after Start")
	}
}

func TestStart_Disabled(t *testing.T) {
	source := &fakeSource{certs: certs(4)}
	renewer := &fakeRenewer{}
	s := NewScheduler(source, renewer, Config{Logger: quietLogger()})

	s.Start()
	s.Stop()
	assert.Empty(t, renewer.Calls())
}

func TestStop_WaitsForInFlightSweep(t *testing.T) {
	source := &fakeSource{certs: certs(1, 2)}
	renewer := &fakeRenewer{entered: make(chan int, 2), release: make(chan struct{}), blocking: true}
	s := NewScheduler(source, renewer, Config{Enabled: true, Logger: quietLogger()})

	s.Start()
	<-renewer.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a renewal was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(renewer.release)
	<-stopped
	// shutdown is noticed between certificates
	assert.Equal(t, []int{1}, renewer.Calls())
}
