package realtime

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// View is a list kept current by folding hub events for one table through Apply
type View[T Keyed] struct {
	mu    sync.RWMutex
	items []T
	cmp   func(a, b T) int
	keep  func(T) bool
	sub   *Subscription
	done  chan struct{}
	log   *zap.Logger
	table string
}

// NewView starts a view seeded with initial rows. cmp orders the list after each change
// and keep drops rows that no longer belong (both optional).
func NewView[T Keyed](hub *Hub, table string, initial []T, cmp func(a, b T) int, keep func(T) bool, log *zap.Logger) *View[T] {
	v := &View[T]{
		items: slices.Clone(initial),
		cmp:   cmp,
		keep:  keep,
		sub:   hub.Subscribe(table),
		done:  make(chan struct{}),
		log:   log,
		table: table,
	}
	if cmp != nil {
		slices.SortStableFunc(v.items, cmp)
	}

	go v.run()
	return v
}

func (v *View[T]) run() {
	defer close(v.done)
	for ev := range v.sub.C {
		ce, err := Decode[T](ev)
		if err != nil {
			v.log.Warn("skipping undecodable change event", zap.String("table", v.table), zap.Error(err))
			continue
		}
		v.Apply(ce)
	}
}

// Apply folds one event into the view
func (v *View[T]) Apply(ev ChangeEvent[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := ApplySorted(v.items, ev, v.cmp)
	if v.keep != nil {
		filtered := make([]T, 0, len(next))
		for _, item := range next {
			if v.keep(item) {
				filtered = append(filtered, item)
			}
		}
		next = filtered
	}
	v.items = next
}

// Reset replaces the view contents, e.g. after a full reload
func (v *View[T]) Reset(items []T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.items = slices.Clone(items)
	if v.cmp != nil {
		slices.SortStableFunc(v.items, v.cmp)
	}
}

// Items returns a snapshot of the view
func (v *View[T]) Items() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.items)
}

// Close tears down the subscription and waits for the view goroutine to exit
func (v *View[T]) Close() {
	v.sub.Close()
	<-v.done
}
