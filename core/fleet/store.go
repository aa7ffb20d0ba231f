// Package fleet keeps the last known position of every tracked unit.
package fleet

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Position is the last fix reported for a unit.
type Position struct {
	UnitID     int64     `json:"unit_id"`
	Name       string    `json:"name"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKMH   float64   `json:"speed_kmh"`
	Course     float64   `json:"course"`
	Altitude   float64   `json:"altitude"`
	Satellites int       `json:"satellites"`
	Time       time.Time `json:"time"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// NameContains matches unit names case-insensitively.
	NameContains string
}

type Store interface {
	Upsert(...Position)
	Get(unitID int64) (Position, bool)
	List(Filter) []Position
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[int64]Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[int64]Position{}}
}

// Upsert stores positions, ignoring fixes older than the one already held.
func (s *MemoryStore) Upsert(ps ...Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		if cur, ok := s.data[p.UnitID]; ok && p.Time.Before(cur.Time) {
			continue
		}
		s.data[p.UnitID] = p
	}
}

func (s *MemoryStore) Get(unitID int64) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[unitID]
	return p, ok
}

func (s *MemoryStore) List(f Filter) []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(f.NameContains)
	res := make([]Position, 0, len(s.data))
	for _, p := range s.data {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].UnitID < res[j].UnitID
	})
	return res
}
