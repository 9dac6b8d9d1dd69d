package event

import (
	"fmt"
	"sync"
)

// DefaultMaxQueue bounds a team's queue when NewQueue is given a non-positive size.
const DefaultMaxQueue = 1000

// Queue holds per-team event records until an observer drains them.
// Each team's queue is bounded; once full the oldest records are dropped.
type Queue struct {
	mu      sync.Mutex
	max     int
	seq     uint64
	teams   map[string][]Record
	dropped map[string]int
}

// NewQueue creates a Queue holding at most max records per team.
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = DefaultMaxQueue
	}
	return &Queue{
		max:     max,
		teams:   make(map[string][]Record),
		dropped: make(map[string]int),
	}
}

// Append adds rec to its team's queue, assigning an ID, and returns the stored record.
func (q *Queue) Append(rec Record) Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	rec.ID = fmt.Sprintf("evt-%d", q.seq)

	recs := append(q.teams[rec.Team], rec)
	if over := len(recs) - q.max; over > 0 {
		recs = append(recs[:0:0], recs[over:]...)
		q.dropped[rec.Team] += over
	}
	q.teams[rec.Team] = recs
	return rec
}

// Drain returns the team's queued records, oldest first, and clears the queue.
func (q *Queue) Drain(team string) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs := q.teams[team]
	delete(q.teams, team)
	delete(q.dropped, team)
	if recs == nil {
		return []Record{}
	}
	return recs
}

// Len returns the number of records waiting for team.
func (q *Queue) Len(team string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.teams[team])
}

// Dropped returns how many records were discarded for team since the last drain.
func (q *Queue) Dropped(team string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped[team]
}

// Forget discards all state held for team.
func (q *Queue) Forget(team string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.teams, team)
	delete(q.dropped, team)
}
