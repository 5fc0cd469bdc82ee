package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingDispatcher captures async events in order
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingDispatcher) Subscribe(event.Type, dispatcher.Handler)              {}
func (r *recordingDispatcher) SubscribeNamed(event.Type, string, dispatcher.Handler) {}
func (r *recordingDispatcher) Unsubscribe(event.Type, string)                        {}
func (r *recordingDispatcher) ListHandlers(event.Type) []dispatcher.HandlerInfo      { return nil }
func (r *recordingDispatcher) Close() error                                          { return nil }

func (r *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	r.DispatchAsync(ctx, evt)
	return nil
}

func (r *recordingDispatcher) DispatchAsync(_ context.Context, evt *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingDispatcher) Types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type mockExtractionClient struct {
	mu         sync.Mutex
	submitFunc func(ctx context.Context, req entity.ExtractionRequest) error
	requests   []entity.ExtractionRequest
}

func (m *mockExtractionClient) Submit(ctx context.Context, req entity.ExtractionRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.submitFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return nil
}

func (m *mockExtractionClient) Requests() []entity.ExtractionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.ExtractionRequest(nil), m.requests...)
}

type mockFileStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	saveFunc func(ctx context.Context, path string, content []byte) error
}

func newMockFileStorage() *mockFileStorage {
	return &mockFileStorage{files: make(map[string][]byte)}
}

func (m *mockFileStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		if err := m.saveFunc(ctx, path, content); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), content...)
	return nil
}

func (m *mockFileStorage) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return data, nil
}

func (m *mockFileStorage) Exists(_ context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockFileStorage) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *mockFileStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

// sequence returns ids prefix-1, prefix-2, ...
func sequence(prefix string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

// tickingClock advances one second per call starting at start
func tickingClock(start time.Time) Clock {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
