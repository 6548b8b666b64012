package jobs

import "sync"

// registry maps job ids to jobs. Every read and write, including the
// admission check, happens under mu.
type registry struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

// activeLocked returns the job blocking admission, if any.
func (r *registry) activeLocked() *job {
	for _, j := range r.jobs {
		if j.state.Active() || j.state == StateStarting {
			return j
		}
	}
	return nil
}

// admitLocked inserts j unless another job is active.
func (r *registry) admitLocked(j *job) *job {
	if existing := r.activeLocked(); existing != nil {
		return existing
	}
	r.jobs[j.id] = j
	return nil
}

func (r *registry) lookupLocked(id string) (*job, bool) {
	j, ok := r.jobs[id]
	return j, ok
}

func (r *registry) evictLocked(id string) {
	delete(r.jobs, id)
}

func (r *registry) snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.snapshot())
	}
	return out
}
