package ble

import "sync"

// linkTable is the connection bookkeeping behind a Radio whose stack reports
// link loss by address only. Every connect attempt gets its own link, so a
// late report about a released link is never routed to the handlers of a
// newer attempt to the same address.
type linkTable[D any] struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]*link[D] // connect in flight, by token
	live    map[string]*link[D] // established, by address
	closing map[string]int      // released links whose loss report is still due
}

type link[D any] struct {
	token     uint64
	addr      string
	handlers  ConnectHandlers
	cancelled bool
	dev       D
}

func newLinkTable[D any]() *linkTable[D] {
	return &linkTable[D]{
		pending: make(map[uint64]*link[D]),
		live:    make(map[string]*link[D]),
		closing: make(map[string]int),
	}
}

// begin registers a connect attempt to addr.
func (t *linkTable[D]) begin(addr string, h ConnectHandlers) *link[D] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	l := &link[D]{token: t.next, addr: addr, handlers: h}
	t.pending[l.token] = l
	return l
}

// establish records that the attempt l completed with dev. It returns false
// when l was released while connecting; the caller must then close dev, and
// the loss report that follows is absorbed.
func (t *linkTable[D]) establish(l *link[D], dev D) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, l.token)
	if l.cancelled {
		t.closing[l.addr]++
		return false
	}
	l.dev = dev
	t.live[l.addr] = l
	return true
}

// abandon drops an attempt that failed to connect.
func (t *linkTable[D]) abandon(l *link[D]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, l.token)
}

// release takes addr out of service for a requested disconnect. Attempts
// still connecting are cancelled. The established link, if any, is returned
// for the caller to close; its loss report will be absorbed.
func (t *linkTable[D]) release(addr string) (*link[D], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.pending {
		if l.addr == addr {
			l.cancelled = true
		}
	}
	l, ok := t.live[addr]
	if !ok {
		return nil, false
	}
	delete(t.live, addr)
	t.closing[addr]++
	return l, true
}

// closeFailed undoes the pending loss report for addr after closing a
// released link failed, so a later real loss is not absorbed in its place.
func (t *linkTable[D]) closeFailed(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unclose(addr)
}

// lost handles a link-loss report for addr. It returns the link whose
// handlers should hear about it, or false when the report belongs to a
// released link.
func (t *linkTable[D]) lost(addr string) (*link[D], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing[addr] > 0 {
		t.unclose(addr)
		return nil, false
	}
	l, ok := t.live[addr]
	if ok {
		delete(t.live, addr)
	}
	return l, ok
}

// lookup returns the established link for addr.
func (t *linkTable[D]) lookup(addr string) (*link[D], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.live[addr]
	return l, ok
}

func (t *linkTable[D]) unclose(addr string) {
	if t.closing[addr] <= 1 {
		delete(t.closing, addr)
		return
	}
	t.closing[addr]--
}

// scanResults splits a scan's raw results into first sightings and repeat
// advertisements per address.
type scanResults struct {
	mu   sync.Mutex
	seen map[string]bool
	h    ScanHandlers
}

func newScanResults(h ScanHandlers) *scanResults {
	return &scanResults{seen: make(map[string]bool), h: h}
}

func (s *scanResults) report(adv Advertisement) {
	s.mu.Lock()
	first := !s.seen[adv.Address]
	s.seen[adv.Address] = true
	s.mu.Unlock()

	if first {
		if s.h.OnFirstSeen != nil {
			s.h.OnFirstSeen(adv.Address, adv.Name)
		}
		return
	}
	if s.h.OnAdvertisement != nil {
		s.h.OnAdvertisement(adv)
	}
}
