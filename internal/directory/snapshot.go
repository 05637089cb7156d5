package directory

import (
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/repository"
)

// Quarantined is a record that failed to decode. It is kept out of every member list.
type Quarantined struct {
	ID  string
	Err error
}

// Snapshot is an immutable view of the member collection at one point in time.
// Accessors return copies.
type Snapshot struct {
	version     uint64
	takenAt     time.Time
	members     []domain.Member
	index       map[string]int
	quarantined map[string]error
	order       []string
}

var emptySnapshot = &Snapshot{index: map[string]int{}, quarantined: map[string]error{}}

// newSnapshot decodes recs (given in arrival order) and sorts them by role rank.
func newSnapshot(version uint64, recs []docstore.Record, now time.Time) *Snapshot {
	s := &Snapshot{
		version:     version,
		takenAt:     now,
		members:     make([]domain.Member, 0, len(recs)),
		index:       make(map[string]int, len(recs)),
		quarantined: map[string]error{},
	}
	for _, rec := range recs {
		m, err := repository.DecodeMember(rec)
		if err != nil {
			s.quarantined[rec.ID] = err
			s.order = append(s.order, rec.ID)
			continue
		}
		s.members = append(s.members, m)
	}
	sort.SliceStable(s.members, func(i, j int) bool {
		return domain.Compare(s.members[i].Role, s.members[j].Role) < 0
	})
	for i, m := range s.members {
		s.index[m.ID] = i
	}
	return s
}

// Version grows by one with every replacement, across restarts too.
func (s *Snapshot) Version() uint64 { return s.version }

// TakenAt is when the snapshot was published.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Len is the number of valid members.
func (s *Snapshot) Len() int { return len(s.members) }

// Members returns every valid member, rank ascending, ties in arrival order.
func (s *Snapshot) Members() []domain.Member {
	return s.collect(func(domain.Member) bool { return true })
}

// Lookup finds a valid member by id.
func (s *Snapshot) Lookup(id string) (domain.Member, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.Member{}, false
	}
	return s.members[i], true
}

// QuarantineError returns the decode error for id, or nil when id is not quarantined.
func (s *Snapshot) QuarantineError(id string) error {
	return s.quarantined[id]
}

// Pending lists members awaiting verification.
func (s *Snapshot) Pending() []domain.Member {
	return s.collect(func(m domain.Member) bool { return m.Status == domain.MemberStatusPending })
}

// Structure lists verified members (active or inactive) for the organization chart.
func (s *Snapshot) Structure() []domain.Member {
	return s.collect(func(m domain.Member) bool { return m.Status != domain.MemberStatusPending })
}

// Filter matches a case-insensitive name substring and an exact role. Empty arguments match all.
func (s *Snapshot) Filter(search string, role domain.Role) []domain.Member {
	needle := strings.ToLower(strings.TrimSpace(search))
	return s.collect(func(m domain.Member) bool {
		if role != "" && m.Role != role {
			return false
		}
		return needle == "" || strings.Contains(strings.ToLower(m.Name), needle)
	})
}

// CountByStatus always carries all three statuses.
func (s *Snapshot) CountByStatus() map[domain.MemberStatus]int {
	counts := map[domain.MemberStatus]int{
		domain.MemberStatusPending:  0,
		domain.MemberStatusActive:   0,
		domain.MemberStatusInactive: 0,
	}
	for _, m := range s.members {
		counts[m.Status]++
	}
	return counts
}

// Quarantined lists malformed records in arrival order.
func (s *Snapshot) Quarantined() []Quarantined {
	out := make([]Quarantined, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Quarantined{ID: id, Err: s.quarantined[id]})
	}
	return out
}

func (s *Snapshot) collect(keep func(domain.Member) bool) []domain.Member {
	out := make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
