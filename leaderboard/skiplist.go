package leaderboard

import (
	"math/rand/v2"
	"sync"

	"rewardcore/core"
)

// Skip list keyed by (xp desc, user asc) for O(log n) updates. Ranks are
// implied by traversal order; ties break toward the lower user ID so the
// ordering is stable.

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
}

type SkipList struct {
	mu     sync.RWMutex
	head   *node
	lvl    int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &node{},
		lvl:    1,
		byUser: map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func before(a, b Entry) bool {
	if a.XP == b.XP {
		return a.User < b.User
	}
	return a.XP > b.XP
}

// predecessors returns, per level, the last node ordered before e.
func (s *SkipList) predecessors(e Entry) [maxLevel]*node {
	var prev [maxLevel]*node
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && before(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		prev[i] = cur
	}
	return prev
}

// Update inserts the user or moves them to their new XP total.
func (s *SkipList) Update(user core.UserID, xp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		s.removeLocked(user, old.e)
	}
	e := Entry{User: user, XP: xp}
	prev := s.predecessors(e)
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			prev[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = prev[i].next[i]
		prev[i].next[i] = n
	}
	s.byUser[user] = n
}

func (s *SkipList) removeLocked(user core.UserID, e Entry) {
	prev := s.predecessors(e)
	target := prev[0].next[0]
	if target == nil || target.e.User != user {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if prev[i].next[i] == target {
			prev[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, user)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.removeLocked(user, n.e)
	}
}

func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out
}

func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byUser[user]; ok {
		return n.e, true
	}
	return Entry{}, false
}

var _ Board = (*SkipList)(nil)
