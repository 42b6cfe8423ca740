package solver

import (
	"context"

	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
)

// choice is one pending decision: pick a literal from candidates,
// starting at position tried. Earlier candidates are preferred.
type choice struct {
	prev, next *choice
	tried      int
	candidates []z.Lit
}

// choiceQueue is a deque of pending choices. Guesses consume from the
// front; choices introduced by a guess append to the back so they are
// explored after their siblings. Retried choices go back on the front
// with their position advanced.
type choiceQueue struct {
	head, tail *choice
}

func (q *choiceQueue) empty() bool {
	return q.head == nil
}

func (q *choiceQueue) pushFront(c choice) {
	node := &c
	node.prev, node.next = nil, q.head
	if q.head == nil {
		q.tail = node
	} else {
		q.head.prev = node
	}
	q.head = node
}

func (q *choiceQueue) pushBack(c choice) {
	node := &c
	node.prev, node.next = q.tail, nil
	if q.tail == nil {
		q.head = node
	} else {
		q.tail.next = node
	}
	q.tail = node
}

func (q *choiceQueue) popFront() choice {
	node := q.head
	q.head = node.next
	if q.head == nil {
		q.tail = nil
	} else {
		q.head.prev = nil
	}
	return *node
}

func (q *choiceQueue) popBack() choice {
	node := q.tail
	q.tail = node.prev
	if q.tail == nil {
		q.head = nil
	} else {
		q.tail.next = nil
	}
	return *node
}

// guess records one made choice. lit is the assumed literal, or
// z.LitNull when a standing assumption already satisfied the choice.
// spawned counts the choices this guess pushed, so backtracking can
// retract them.
type guess struct {
	lit        z.Lit
	tried      int
	spawned    int
	candidates []z.Lit
}

// search walks the space of ordered choices, assuming one candidate
// per choice inside a solver test scope so each step can be undone.
type search struct {
	s        inter.S
	lits     *litMapping
	tracer   Tracer
	standing map[z.Lit]struct{}
	trail    []guess
	pending  choiceQueue
	outcome  int
	scratch  []z.Lit
}

func (h *search) pushGuess() {
	ch := h.pending.popFront()
	g := guess{lit: z.LitNull, tried: ch.tried, candidates: ch.candidates}
	if g.tried < len(g.candidates) {
		g.lit = g.candidates[g.tried]
	}

	// A standing assumption covering any candidate settles the
	// choice without a fresh guess.
	for _, m := range g.candidates {
		if _, ok := h.standing[m]; ok {
			g.lit = z.LitNull
			break
		}
	}

	h.trail = append(h.trail, g)
	if g.lit == z.LitNull {
		return
	}

	// The guessed variable may impose ordered constraints of its
	// own; they become pending choices charged to this guess.
	v := h.lits.VariableOf(g.lit)
	for _, cons := range v.Constraints() {
		var cands []z.Lit
		for _, id := range cons.order() {
			cands = append(cands, h.lits.LitOf(id))
		}
		if len(cands) > 0 {
			h.trail[len(h.trail)-1].spawned++
			h.pending.pushBack(choice{candidates: cands})
		}
	}

	if h.standing == nil {
		h.standing = make(map[z.Lit]struct{})
	}
	h.standing[g.lit] = struct{}{}
	h.s.Assume(g.lit)
	h.outcome, h.scratch = h.s.Test(h.scratch)
}

func (h *search) popGuess() {
	g := h.trail[len(h.trail)-1]
	h.trail = h.trail[:len(h.trail)-1]
	if g.lit != z.LitNull {
		delete(h.standing, g.lit)
		h.outcome = h.s.Untest()
	}
	for ; g.spawned > 0; g.spawned-- {
		h.pending.popBack()
	}

	// The choice returns to the front of the queue, advanced past
	// the candidate that was just retracted.
	ch := choice{tried: g.tried, candidates: g.candidates}
	if g.lit != z.LitNull {
		ch.tried++
	}
	h.pending.pushFront(ch)
}

// assumed returns the literals guessed so far, in guess order.
func (h *search) assumed() []z.Lit {
	picked := make([]z.Lit, 0, len(h.trail))
	for _, g := range h.trail {
		if g.lit != z.LitNull {
			picked = append(picked, g.lit)
		}
	}
	return picked
}

// Do seeds the queue with one single-candidate choice per anchor and
// runs the search until it reaches a definitive outcome or ctx is
// done. It returns the outcome, the literals assumed at that point,
// and the same literals as a set. The solver is unwound to its
// initial test scope before returning.
func (h *search) Do(ctx context.Context, anchors []z.Lit) (int, []z.Lit, map[z.Lit]struct{}) {
	for _, m := range anchors {
		h.pending.pushBack(choice{candidates: []z.Lit{m}})
	}

	for {
		// Cancellation demotes whatever intermediate outcome the
		// last test produced to unknown.
		if ctx.Err() != nil {
			h.outcome = unknown
			break
		}

		// Once every choice has been made, a definitive answer
		// decides between finishing and backtracking.
		if h.pending.empty() && h.outcome == unknown {
			h.outcome = h.s.Solve()
		}

		if h.outcome == unsatisfiable {
			h.tracer.Trace(h)
			if len(h.trail) == 0 {
				break
			}
			h.popGuess()
			continue
		}

		if h.pending.empty() {
			break
		}

		h.pushGuess()
	}

	picked := h.assumed()
	members := make(map[z.Lit]struct{}, len(picked))
	for _, m := range picked {
		members[m] = struct{}{}
	}

	// popGuess overwrites the outcome through Untest, so it has to
	// be captured before the unwind.
	final := h.outcome
	for len(h.trail) > 0 {
		h.popGuess()
	}

	return final, picked, members
}

// Variables returns the variables assumed by the search so far.
func (h *search) Variables() []Variable {
	vs := make([]Variable, 0, len(h.trail))
	for _, g := range h.trail {
		if g.lit != z.LitNull {
			vs = append(vs, h.lits.VariableOf(g.lit))
		}
	}
	return vs
}

// Conflicts returns the applied constraints behind the most recent
// failure.
func (h *search) Conflicts() []AppliedConstraint {
	return h.lits.Conflicts(h.s)
}
