package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingService struct {
	name string
	log  *callLog

	startErr error
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (s *recordingService) Start(ctx context.Context) error {
	s.log.add("start:" + s.name)
	return s.startErr
}

func (s *recordingService) Stop(ctx context.Context) error {
	s.log.add("stop:" + s.name)
	return nil
}

func register(t *testing.T, host *ServiceHost, log *callLog, name string, startErr error) {
	t.Helper()
	err := host.Register(name, func(ctx context.Context) (Service, error) {
		return &recordingService{name: name, log: log, startErr: startErr}, nil
	})
	if err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
}

func TestStartAndStopOrder(t *testing.T) {
	t.Parallel()

	host := NewServiceHost()
	log := &callLog{}
	register(t, host, log, "store", nil)
	register(t, host, log, "manager", nil)
	register(t, host, log, "gateway", nil)

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := host.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{
		"start:store", "start:manager", "start:gateway",
		"stop:gateway", "stop:manager", "stop:store",
	}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestStartFailureStopsEarlierServices(t *testing.T) {
	t.Parallel()

	host := NewServiceHost()
	log := &callLog{}
	register(t, host, log, "store", nil)
	register(t, host, log, "broken", errors.New("boom"))

	if err := host.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded despite failing service")
	}

	got := log.snapshot()
	want := []string{"start:store", "start:broken", "stop:store"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	t.Parallel()

	host := NewServiceHost()
	log := &callLog{}
	register(t, host, log, "store", nil)

	err := host.Register("store", func(ctx context.Context) (Service, error) {
		return &recordingService{name: "store", log: log}, nil
	})
	if err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()

	host := NewServiceHost()
	if err := host.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
