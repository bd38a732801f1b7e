package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/para"
)

// Op names a Provider operation for fault injection.
type Op string

const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpExists Op = "exists"
	OpList   Op = "list"
	OpDelete Op = "delete"
)

type faultKey struct {
	op   Op
	path string
}

// Memory is an in-process Provider. Faults registered with Fail are returned
// instead of performing the operation, which lets callers exercise rollback
// paths.
type Memory struct {
	mu     sync.Mutex
	files  map[string]string
	faults map[faultKey]error
	writes int
}

// NewMemory returns an empty Memory provider seeded with files.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{
		files:  make(map[string]string, len(files)),
		faults: make(map[faultKey]error),
	}
	for p, content := range files {
		if rel, err := para.Clean(p); err == nil {
			m.files[rel] = content
		}
	}
	return m
}

// Fail makes every op on path return err until Heal is called. An empty path
// matches every path.
func (m *Memory) Fail(op Op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[faultKey{op, path}] = err
}

// Heal removes a fault registered with Fail.
func (m *Memory) Heal(op Op, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.faults, faultKey{op, path})
}

// Writes returns the number of successful WriteFile calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Files returns a copy of the stored files.
func (m *Memory) Files() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.files))
	for k, v := range m.files {
		out[k] = v
	}
	return out
}

func (m *Memory) fault(op Op, path string) error {
	if err, ok := m.faults[faultKey{op, path}]; ok {
		return err
	}
	if err, ok := m.faults[faultKey{op, ""}]; ok {
		return err
	}
	return nil
}

func (m *Memory) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := para.Clean(path)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpRead, rel); err != nil {
		return "", err
	}
	content, ok := m.files[rel]
	if !ok {
		return "", apperr.New(apperr.KindNotFound, rel, nil)
	}
	return content, nil
}

func (m *Memory) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := para.Clean(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpWrite, rel); err != nil {
		return apperr.New(apperr.KindWriteFailed, rel, err)
	}
	m.files[rel] = content
	m.writes++
	return nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rel, err := para.Clean(path)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpExists, rel); err != nil {
		return false, err
	}
	_, ok := m.files[rel]
	return ok, nil
}

func (m *Memory) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := ""
	if dir != "" {
		rel, err := para.Clean(dir)
		if err != nil {
			return nil, err
		}
		prefix = rel + "/"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpList, dir); err != nil {
		return nil, err
	}
	var out []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) && para.IsDocument(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := para.Clean(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpDelete, rel); err != nil {
		return apperr.New(apperr.KindWriteFailed, rel, err)
	}
	if _, ok := m.files[rel]; !ok {
		return apperr.New(apperr.KindNotFound, rel, nil)
	}
	delete(m.files, rel)
	return nil
}
