// Package twin implements an in-memory stand-in for the filter-search and
// update API that test cases run against. It is used by tests and by the
// "acctest twin" command for local dry runs.
package twin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/example/erp/tools/acctest/internal/value"
)

// Record is one stored entity.
type Record = map[string]any

// Store holds collections of records keyed by collection name.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]Record)}
}

// LoadState replaces the full state from a JSON object of collection name to
// record array. Numbers are kept as json.Number.
func (s *Store) LoadState(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var state map[string][]Record
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("decoding twin state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]Record, len(state))
	for name, records := range state {
		s.collections[strings.ToLower(name)] = records
	}
	return nil
}

// LoadFile reads state from a JSON seed file.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	return s.LoadState(data)
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() map[string][]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Record, len(s.collections))
	for name, records := range s.collections {
		copied := make([]Record, len(records))
		for i, r := range records {
			copied[i] = cloneRecord(r)
		}
		out[name] = copied
	}
	return out
}

// Put appends a record to a collection.
func (s *Store) Put(collection string, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(collection)
	s.collections[name] = append(s.collections[name], cloneRecord(r))
}

// Condition is one equality filter.
type Condition struct {
	Key   string
	Value any
}

// Search returns the records matching every condition, newest id first,
// along with the total number of matches.
func (s *Store) Search(collection string, conds []Condition, page, size int) ([]Record, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Record
	for _, r := range s.collections[strings.ToLower(collection)] {
		if matchesAll(r, conds) {
			matches = append(matches, r)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return idGreater(matches[i]["id"], matches[j]["id"])
	})

	total := len(matches)
	if size <= 0 {
		size = total
	}
	start := min(page*size, total)
	end := min(start+size, total)

	out := make([]Record, 0, end-start)
	for _, r := range matches[start:end] {
		out = append(out, cloneRecord(r))
	}
	return out, total
}

// Get returns the record with the given id.
func (s *Store) Get(collection string, id any) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.collections[strings.ToLower(collection)] {
		if sameValue(r["id"], id) {
			return cloneRecord(r), true
		}
	}
	return nil, false
}

// Update merges patch into the record whose id equals patch["id"] and
// returns the updated record.
func (s *Store) Update(collection string, patch Record) (Record, error) {
	id, ok := patch["id"]
	if !ok {
		return nil, fmt.Errorf("update requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.collections[strings.ToLower(collection)]
	for i, r := range records {
		if !sameValue(r["id"], id) {
			continue
		}
		updated := cloneRecord(r)
		for k, v := range patch {
			updated[k] = v
		}
		records[i] = updated
		return cloneRecord(updated), nil
	}
	return nil, fmt.Errorf("%s record %v not found", collection, id)
}

// Delete removes the record with the given id.
func (s *Store) Delete(collection string, id any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(collection)
	records := s.collections[name]
	for i, r := range records {
		if sameValue(r["id"], id) {
			s.collections[name] = append(records[:i], records[i+1:]...)
			return true
		}
	}
	return false
}

func matchesAll(r Record, conds []Condition) bool {
	for _, c := range conds {
		if !sameValue(r[c.Key], c.Value) {
			return false
		}
	}
	return true
}

// sameValue compares two JSON values the way test case cells are compared.
func sameValue(a, b any) bool {
	return value.FromJSON(a).Equal(value.FromJSON(b))
}

func idGreater(a, b any) bool {
	va, vb := value.FromJSON(a), value.FromJSON(b)
	fa, aNum := numeric(va)
	fb, bNum := numeric(vb)
	if aNum && bNum {
		return fa > fb
	}
	return va.String() > vb.String()
}

func numeric(v value.Value) (float64, bool) {
	switch n := v.Interface().(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
