package app

import (
	"sync"

	"food-quiz-service/internal/domain"
)

// LeaderboardHub fans leaderboard snapshots out to live subscribers, per quiz.
type LeaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}

	refreshMu sync.Mutex
	refreshes map[string]*sync.Mutex
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
		refreshes:   make(map[string]*sync.Mutex),
	}
}

// Refresh ranks and publishes a snapshot for quizID. Refreshes of the same quiz
// are serialized so subscribers never receive an older ranking after a newer one.
func (h *LeaderboardHub) Refresh(quizID string, rank func() (domain.Leaderboard, error)) error {
	h.refreshMu.Lock()
	lock, ok := h.refreshes[quizID]
	if !ok {
		lock = &sync.Mutex{}
		h.refreshes[quizID] = lock
	}
	h.refreshMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	lb, err := rank()
	if err != nil {
		return err
	}
	h.Publish(lb)
	return nil
}

// Subscribe registers a listener for quizID and primes it with initial.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(quizID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, quizID)
		}
	}
	return ch, cancel
}

// Publish pushes lb to every subscriber of its quiz. Slow subscribers lose
// their oldest pending snapshot rather than blocking the publisher.
func (h *LeaderboardHub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.QuizID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribers reports how many listeners are attached to quizID.
func (h *LeaderboardHub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[quizID])
}
