package executor

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

// registry maps session ids and in-flight command ids to sessions. One
// coarse lock guards both maps; it is never held across session calls that
// block.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	commands map[string]*session.Session
	closed   bool

	// sizeChanged receives the session count after an insert or removal,
	// outside the lock.
	sizeChanged func(n int)
}

func newRegistry(sizeChanged func(n int)) *registry {
	if sizeChanged == nil {
		sizeChanged = func(int) {}
	}
	return &registry{
		sessions:    make(map[string]*session.Session),
		commands:    make(map[string]*session.Session),
		sizeChanged: sizeChanged,
	}
}

// getOrCreate returns the live session for id, creating it with create when
// absent. created reports whether create ran.
func (r *registry) getOrCreate(id string, create func() (*session.Session, error)) (s *session.Session, created bool, err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false, ErrExecutorClosed
	}
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	s, err = create()
	if err != nil {
		r.mu.Unlock()
		return nil, false, err
	}
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.sizeChanged(n)
	return s, true, nil
}

func (r *registry) get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove drops s if it is still registered under its id
func (r *registry) remove(s *session.Session) bool {
	r.mu.Lock()
	if cur, ok := r.sessions[s.ID()]; !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.ID())
	for cmdID, owner := range r.commands {
		if owner == s {
			delete(r.commands, cmdID)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.sizeChanged(n)
	return true
}

func (r *registry) track(commandID string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[commandID] = s
}

func (r *registry) untrack(commandID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, commandID)
}

func (r *registry) sessionFor(commandID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.commands[commandID]
	return s, ok
}

// list returns every session, oldest first
func (r *registry) list() []*session.Session {
	r.mu.Lock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	infos := make(map[*session.Session]session.Info, len(out))
	for _, s := range out {
		infos[s] = s.Info()
	}
	sort.Slice(out, func(i, j int) bool {
		return infos[out[i]].CreatedAt.Before(infos[out[j]].CreatedAt)
	})
	return out
}

// closeAll marks the registry closed and hands back every session
func (r *registry) closeAll() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.commands = make(map[string]*session.Session)
	return out
}
