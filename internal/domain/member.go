package domain

import "time"

// MemberStatus represents lifecycle states for a member record.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Valid reports whether s is a known lifecycle status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusPending, MemberStatusActive, MemberStatusInactive:
		return true
	}
	return false
}

// CanTransition reports whether a stored status may be rewritten to next.
// Nothing re-enters pending, and pending only leaves towards active (or removal).
func (s MemberStatus) CanTransition(next MemberStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case MemberStatusPending:
		return next == MemberStatusActive
	case MemberStatusActive:
		return next == MemberStatusInactive
	case MemberStatusInactive:
		return next == MemberStatusActive
	}
	return false
}

// Member is one registered person in the directory.
type Member struct {
	ID       string
	Name     string
	Email    string
	Role     Role
	Status   MemberStatus
	Avatar   string
	JoinedAt time.Time
}

// IsActive reports whether the member may act as a verified member.
func (m Member) IsActive() bool {
	return m.Status == MemberStatusActive
}
