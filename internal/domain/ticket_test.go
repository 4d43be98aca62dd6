package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, TicketPriorityLow.Rank(), TicketPriorityMedium.Rank())
	assert.Less(t, TicketPriorityMedium.Rank(), TicketPriorityHigh.Rank())
	assert.Less(t, TicketPriorityHigh.Rank(), TicketPriorityCritical.Rank())
	assert.Equal(t, -1, TicketPriority("URGENT").Rank())
	assert.False(t, TicketPriority("").Valid())
}

func TestMergeTagsDeduplicates(t *testing.T) {
	got := MergeTags([]string{"billing", "vip"}, "vip", "", "refund", "billing", "refund")
	assert.Equal(t, []string{"billing", "vip", "refund"}, got)
}

func TestCommentCountsAsResponse(t *testing.T) {
	assert.True(t, (&TicketComment{AuthorType: AuthorTypeStaff}).CountsAsResponse())
	assert.True(t, (&TicketComment{AuthorType: AuthorTypeUser}).CountsAsResponse())
	assert.False(t, (&TicketComment{AuthorType: AuthorTypeStaff, IsInternal: true}).CountsAsResponse())
	assert.False(t, (&TicketComment{AuthorType: AuthorTypeSystem}).CountsAsResponse())
}

func TestParseStaffRoles(t *testing.T) {
	roles := ParseStaffRoles([]string{"agent", " TEAM_LEAD ", ""})
	assert.Equal(t, []StaffRole{StaffRoleAgent, StaffRoleTeamLead}, roles)
	assert.Empty(t, ParseStaffRoles(nil))
}
