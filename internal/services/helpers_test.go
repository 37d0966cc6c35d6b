package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"legalmind/internal"
	"legalmind/internal/llm"
	"legalmind/internal/storage"
	"legalmind/internal/templates"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := internal.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestRegistry(t *testing.T) *templates.Registry {
	t.Helper()
	r, err := templates.NewRegistry()
	require.NoError(t, err)
	return r
}

type memUploader struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   atomic.Int32
	deletes   atomic.Int32
	uploadErr error
	signErr   error
}

func (u *memUploader) Upload(_ context.Context, data []byte, objectName, contentType string) (*storage.UploadResult, error) {
	u.uploads.Add(1)
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[objectName] = data
	return &storage.UploadResult{ObjectName: objectName, Size: int64(len(data)), ContentType: contentType}, nil
}

func (u *memUploader) SignedURL(_ context.Context, objectName string, ttl time.Duration) (string, error) {
	if u.signErr != nil {
		return "", u.signErr
	}
	return "https://storage.example/" + objectName + "?expires=" + ttl.String(), nil
}

func (u *memUploader) ReadObject(_ context.Context, objectName string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	b, ok := u.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return b, nil
}

func (u *memUploader) Delete(ctx context.Context, objectName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.deletes.Add(1)
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, objectName)
	return nil
}

func (u *memUploader) Close() error { return nil }

// renderFunc adapts a function to Renderer.
type renderFunc func(ctx context.Context, html string, params map[string]string) ([]byte, error)

func (f renderFunc) Render(ctx context.Context, html string, params map[string]string) ([]byte, error) {
	return f(ctx, html, params)
}

// stubRenderer records the values it was asked to render.
type stubRenderer struct {
	mu     sync.Mutex
	calls  int
	values map[string]string
	err    error
}

func (r *stubRenderer) Render(_ context.Context, _ string, params map[string]string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.values = params
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7"), nil
}

func (r *stubRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// scriptedLLM answers JSON prompts with a fixed response and streams the
// configured chunks.
type scriptedLLM struct {
	json      string
	jsonErr   error
	chunks    []string
	streamErr error
	jsonCalls atomic.Int32
}

func (l *scriptedLLM) GenerateJSON(context.Context, string, string) (string, error) {
	l.jsonCalls.Add(1)
	return l.json, l.jsonErr
}

func (l *scriptedLLM) GenerateStream(context.Context, string, string) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, len(l.chunks)+1)
	for _, c := range l.chunks {
		ch <- llm.Chunk{Text: c}
	}
	if l.streamErr != nil {
		ch <- llm.Chunk{Err: l.streamErr}
	}
	close(ch)
	return ch, nil
}

type fixedClassifier struct {
	result Classification
	calls  atomic.Int32
}

func (c *fixedClassifier) Classify(context.Context, string) Classification {
	c.calls.Add(1)
	return c.result
}
