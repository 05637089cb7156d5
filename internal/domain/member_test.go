package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemberStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to MemberStatus
		ok       bool
	}{
		{MemberStatusPending, MemberStatusActive, true},
		{MemberStatusPending, MemberStatusPending, true},
		{MemberStatusPending, MemberStatusInactive, false},
		{MemberStatusActive, MemberStatusInactive, true},
		{MemberStatusInactive, MemberStatusActive, true},
		{MemberStatusActive, MemberStatusActive, true},
		{MemberStatusActive, MemberStatusPending, false},
		{MemberStatusInactive, MemberStatusPending, false},
		{MemberStatus("banned"), MemberStatusActive, false},
		{MemberStatusActive, MemberStatus(""), false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestMember_IsActive(t *testing.T) {
	t.Run("Should treat only active as verified", func(t *testing.T) {
		assert.True(t, Member{Status: MemberStatusActive}.IsActive())
		assert.False(t, Member{Status: MemberStatusPending}.IsActive())
		assert.False(t, Member{Status: MemberStatusInactive}.IsActive())
	})
}
