package alu

import (
	"fmt"
	"math/rand"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/config"
	"golang.org/x/exp/slices"
)

// MemoryHandler is the handler executing loads, stores and allocations.
const MemoryHandler = 1

// Memory handler slots.
const (
	SlotLoad  = 0
	SlotStore = 1
	SlotAlloc = 2
)

// SchedulerIndex identifies a slot within a handler.
type SchedulerIndex struct {
	Handler int `json:"handler"`
	Slot    int `json:"slot"`
}

// String returns the index as "handler:slot".
func (idx SchedulerIndex) String() string {
	return fmt.Sprintf("%d:%d", idx.Handler, idx.Slot)
}

// SchedulerMap maps a block index to its handler slot.
type SchedulerMap map[int]SchedulerIndex

// SemanticsEntry is a block expression assigned to a handler slot.
type SemanticsEntry struct {
	Slot int       `json:"slot"`
	Expr loki.Expr `json:"expr"`
}

// SemanticsMap maps a handler to the block expressions it must implement.
type SemanticsMap map[int][]SemanticsEntry

// Handlers returns the handler ids in ascending order.
func (m SemanticsMap) Handlers() []int {
	a := make([]int, 0, len(m))
	for id := range m {
		a = append(a, id)
	}
	slices.Sort(a)
	return a
}

// MaxSlot returns the highest slot assigned to handler id, or -1.
func (m SemanticsMap) MaxSlot(id int) int {
	slot := -1
	for _, entry := range m[id] {
		slot = max(slot, entry.Slot)
	}
	return slot
}

// add assigns e to the slot of idx. A slot keeps its first expression; the
// fixed slots of the memory handler are shared by every memory block.
func (m SemanticsMap) add(idx SchedulerIndex, e loki.Expr) {
	for _, entry := range m[idx.Handler] {
		if entry.Slot == idx.Slot {
			return
		}
	}
	m[idx.Handler] = append(m[idx.Handler], SemanticsEntry{Slot: idx.Slot, Expr: e})
}

// Scheduler assigns semantics blocks to handler slots.
type Scheduler struct {
	cfg config.Config
	rng *rand.Rand

	// Slots already handed out and the slots used by each distinct block.
	used   map[SchedulerIndex]struct{}
	byExpr map[string][]SchedulerIndex

	ReuseN int // number of blocks placed on an existing slot
}

// NewScheduler returns a new instance of Scheduler.
func NewScheduler(cfg config.Config, rng *rand.Rand) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		rng:    rng,
		used:   make(map[SchedulerIndex]struct{}),
		byExpr: make(map[string][]SchedulerIndex),
	}
}

// Schedule places each block on a handler slot. Memory blocks always go to
// the memory handler. Panics if the handler bank runs out of slots.
func (s *Scheduler) Schedule(blocks []*Block) (SchedulerMap, SemanticsMap) {
	if s.cfg.ScheduleNonDeterministic {
		return s.scheduleNonDeterministic(blocks)
	}
	return s.scheduleDeterministic(blocks)
}

// scheduleDeterministic assigns slots in program order, filling every slot
// of a handler before moving on to the next one.
func (s *Scheduler) scheduleDeterministic(blocks []*Block) (SchedulerMap, SemanticsMap) {
	schedule, semantics := make(SchedulerMap), make(SemanticsMap)

	next := SchedulerIndex{Handler: s.cfg.NumReservedALUHandlers}
	for i, b := range blocks {
		idx, ok := memoryIndex(b)
		if !ok {
			assert(next.Handler <= s.cfg.NumALUs, "not enough space for handler semantics")
			idx = next
			if next.Slot++; next.Slot == s.cfg.MaxSemanticsPerALU {
				next = SchedulerIndex{Handler: next.Handler + 1}
			}
		}

		semantics.add(idx, b.Expr)
		schedule[i] = idx
	}
	return schedule, semantics
}

// scheduleNonDeterministic assigns random free slots. A block identical to
// an earlier one reuses one of its slots with the configured probability.
func (s *Scheduler) scheduleNonDeterministic(blocks []*Block) (SchedulerMap, SemanticsMap) {
	schedule, semantics := make(SchedulerMap), make(SemanticsMap)

	for i, b := range blocks {
		key := b.Expr.Key()
		if prev := s.byExpr[key]; len(prev) > 0 && s.rng.Float64() < s.cfg.ReuseProbability {
			schedule[i] = prev[s.rng.Intn(len(prev))]
			s.ReuseN++
			continue
		}

		idx, ok := memoryIndex(b)
		if !ok {
			idx = s.freshIndex()
		}

		semantics.add(idx, b.Expr)
		s.byExpr[key] = append(s.byExpr[key], idx)
		schedule[i] = idx
	}
	return schedule, semantics
}

// freshIndex returns a random slot not handed out before.
func (s *Scheduler) freshIndex() SchedulerIndex {
	n := s.cfg.NumALUs - s.cfg.NumReservedALUHandlers
	assert(len(s.used) < n*s.cfg.MaxSemanticsPerALU, "not enough space for handler semantics")

	for {
		idx := SchedulerIndex{
			Handler: s.rng.Intn(n) + s.cfg.NumReservedALUHandlers,
			Slot:    s.rng.Intn(s.cfg.MaxSemanticsPerALU),
		}
		if _, ok := s.used[idx]; !ok {
			s.used[idx] = struct{}{}
			return idx
		}
	}
}

// memoryIndex returns the fixed memory handler slot of a memory block.
func memoryIndex(b *Block) (SchedulerIndex, bool) {
	switch b.Expr.Op() {
	case loki.OpLoad:
		return SchedulerIndex{Handler: MemoryHandler, Slot: SlotLoad}, true
	case loki.OpStore:
		return SchedulerIndex{Handler: MemoryHandler, Slot: SlotStore}, true
	case loki.OpAlloc:
		return SchedulerIndex{Handler: MemoryHandler, Slot: SlotAlloc}, true
	default:
		return SchedulerIndex{}, false
	}
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
