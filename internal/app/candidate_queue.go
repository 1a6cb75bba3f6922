package app

import "github.com/dkeye/VideoRooms/internal/domain"

// candidateQueue buffers remote candidates whose target stream does not exist yet.
// Not safe for concurrent use; the owning Participant serializes access.
type candidateQueue struct {
	pending map[StreamTarget][]domain.Candidate
}

func newCandidateQueue() candidateQueue {
	return candidateQueue{pending: make(map[StreamTarget][]domain.Candidate)}
}

func (q *candidateQueue) Push(t StreamTarget, c domain.Candidate) {
	q.pending[t] = append(q.pending[t], c)
}

// Drain removes and returns the candidates for t in arrival order.
func (q *candidateQueue) Drain(t StreamTarget) []domain.Candidate {
	cs := q.pending[t]
	delete(q.pending, t)
	return cs
}

func (q *candidateQueue) Len(t StreamTarget) int { return len(q.pending[t]) }

// Reset drops everything, used when the owner leaves.
func (q *candidateQueue) Reset() int {
	n := 0
	for _, cs := range q.pending {
		n += len(cs)
	}
	clear(q.pending)
	return n
}
