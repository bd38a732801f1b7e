// Package lockset provides per-path exclusive sections. Multi-path
// acquisitions take their locks in lexicographic order so that concurrent
// callers touching overlapping paths cannot deadlock.
package lockset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("lock timeout")

type pathLock struct {
	ch   chan struct{} // holds one token while locked
	refs int
}

// Set is a table of per-path locks. Entries exist only while a lock is held
// or awaited. The zero value is not usable; use New.
type Set struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

// New returns an empty Set.
func New() *Set {
	return &Set{locks: make(map[string]*pathLock)}
}

// Lock acquires every path, in sorted order, and returns a function that
// releases them. Duplicate paths are locked once. If ctx ends first, the
// locks taken so far are released and the error wraps ErrLockTimeout and the
// context error.
func (s *Set) Lock(ctx context.Context, paths ...string) (unlock func(), err error) {
	ordered := slices.Clone(paths)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]string, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			s.release(held[i])
		}
	}

	for _, p := range ordered {
		l := s.ref(p)
		select {
		case l.ch <- struct{}{}:
			held = append(held, p)
		case <-ctx.Done():
			s.unref(p)
			release()
			return nil, fmt.Errorf("lockset: %s: %w: %w", p, ErrLockTimeout, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Held reports the number of paths currently locked or awaited.
func (s *Set) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *Set) ref(p string) *pathLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[p]
	if !ok {
		l = &pathLock{ch: make(chan struct{}, 1)}
		s.locks[p] = l
	}
	l.refs++
	return l
}

func (s *Set) unref(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[p]
	l.refs--
	if l.refs == 0 {
		delete(s.locks, p)
	}
}

func (s *Set) release(p string) {
	s.mu.Lock()
	l := s.locks[p]
	s.mu.Unlock()
	<-l.ch
	s.unref(p)
}
