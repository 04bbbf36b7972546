package client

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
)

const DefaultDebounce = 400 * time.Millisecond

// SearchFunc runs one search request; Client.Search satisfies it.
type SearchFunc func(ctx context.Context, keywords []string) (ListResult, error)

// Outcome is the answer to the latest settled input.
type Outcome struct {
	Query  string
	Result ListResult
	Err    error
}

// Searcher turns a stream of keystrokes into search requests. Input is
// debounced, at most one request is in flight, and a request superseded by
// newer input is canceled and its answer discarded.
type Searcher struct {
	search   SearchFunc
	debounce time.Duration
	results  chan Outcome

	mu     sync.Mutex
	sendMu sync.Mutex
	wg     sync.WaitGroup
	timer  *time.Timer
	cancel context.CancelFunc
	gen    uint64
	closed bool
}

func NewSearcher(search SearchFunc, debounce time.Duration) *Searcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Searcher{
		search:   search,
		debounce: debounce,
		results:  make(chan Outcome, 1),
	}
}

// Results delivers outcomes. Only the newest undelivered outcome is kept.
func (s *Searcher) Results() <-chan Outcome {
	return s.results
}

// Type records the current input text.
func (s *Searcher) Type(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen, query) })
}

func (s *Searcher) fire(gen uint64, query string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	defer cancel()

	result, err := s.search(ctx, SplitInput(query))

	s.mu.Lock()
	current := !s.closed && gen == s.gen
	if current {
		s.cancel = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}
	s.deliver(Outcome{Query: query, Result: result, Err: err})
}

func (s *Searcher) deliver(out Outcome) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case s.results <- out:
		return
	default:
	}
	select {
	case <-s.results:
	default:
	}
	s.results <- out
}

// Close cancels pending work and closes the results channel.
func (s *Searcher) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.sendMu.Lock()
	close(s.results)
	s.sendMu.Unlock()
}

// SplitInput turns free text into search terms; commas and whitespace both
// separate terms.
func SplitInput(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
