package session

import (
	"sync"

	"github.com/pithecene-io/scriptrun/protocol"
)

// reply is delivered to a waiter exactly once.
type reply struct {
	msg *protocol.Message
	err error
}

// entry is one outstanding request. Submitted requests have no waiter.
type entry struct {
	method string
	ch     chan reply
}

// pendingTable tracks outstanding request ids. Safe for concurrent use.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  error
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*entry)}
}

// register adds key. wait selects whether a reply channel is allocated.
func (p *pendingTable) register(key, method string, wait bool) (*entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return nil, p.closed
	}
	if _, ok := p.entries[key]; ok {
		return nil, ErrDuplicateID
	}
	e := &entry{method: method}
	if wait {
		e.ch = make(chan reply, 1)
	}
	p.entries[key] = e
	return e, nil
}

// resolve removes key and hands msg to its waiter, if any. It returns the
// originating method and whether the key was outstanding.
func (p *pendingTable) resolve(key string, msg *protocol.Message) (string, bool) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if !ok {
		return "", false
	}
	if e.ch != nil {
		e.ch <- reply{msg: msg}
	}
	return e.method, true
}

// cancel drops key without delivering anything.
func (p *pendingTable) cancel(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

// failAll releases every waiter with err and rejects later registrations.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	if p.closed == nil {
		p.closed = err
	}
	p.mu.Unlock()

	for _, e := range entries {
		if e.ch != nil {
			e.ch <- reply{err: err}
		}
	}
}

// outstanding returns the number of tracked ids.
func (p *pendingTable) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
