package repository

import (
	"strings"
	"testing"
)

func assertQueryContains(t *testing.T, name, query string, fragments ...string) {
	t.Helper()
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	for _, fragment := range fragments {
		if !strings.Contains(normalized, strings.ToLower(fragment)) {
			t.Fatalf("%s: expected query to contain %q\nquery: %s", name, fragment, normalized)
		}
	}
}

func TestCountersAreIncrementedInPlace(t *testing.T) {
	assertQueryContains(t, "commit exchange", commitExchangeContactQuery,
		"message_count = message_count + $2",
		"questions_asked = questions_asked + $3",
		"needs_human_review = needs_human_review or $4",
	)
	assertQueryContains(t, "append", appendCountersQuery,
		"message_count = message_count + $2",
		"bump_count = bump_count + $3",
	)
}

func TestCommitExchangeGuardsStage(t *testing.T) {
	assertQueryContains(t, "commit exchange", commitExchangeContactQuery,
		"when conversation_stage in ('booked', 'opted_out') then conversation_stage",
		"stage_updated_at > $6 then conversation_stage",
		"last_message_at = greatest(last_message_at, now())",
		"where id = $1",
	)
}

func TestUpsertNeverBlanksPopulatedFields(t *testing.T) {
	for _, column := range []string{"first_name", "last_name", "email", "phone", "location_id"} {
		assertQueryContains(t, "upsert contact", upsertContactQuery,
			column+" = coalesce(nullif(contacts."+column+", ''), excluded."+column+")",
		)
	}
	assertQueryContains(t, "upsert contact", upsertContactQuery, "on conflict (external_id) do update")
}

func TestReplyInsertIsIdempotentPerInbound(t *testing.T) {
	assertQueryContains(t, "insert reply", insertReplyQuery,
		"on conflict (reply_to_id) where reply_to_id is not null do nothing",
	)
	assertQueryContains(t, "insert message", insertMessageQuery,
		"on conflict (contact_id, delivery_id) where delivery_id is not null do nothing",
	)
}

func TestWorkflowEscalationsStaySinglePending(t *testing.T) {
	assertQueryContains(t, "insert escalation", insertEscalationQuery,
		"where status = 'pending' and escalation_type in ('calendar_sent', 'booked')",
		"do nothing",
	)
}

func TestEscalationQueriesAreContactScoped(t *testing.T) {
	for name, query := range map[string]string{
		"resolve": resolvePendingEscalationsQuery,
		"dismiss": dismissPendingEscalationsQuery,
		"list":    listPendingEscalationsQuery,
	} {
		assertQueryContains(t, name, query, "contact_id = $1", "status = 'pending'")
	}
}

func TestHistoryIsNewestNOldestFirst(t *testing.T) {
	assertQueryContains(t, "history", listRecentMessagesQuery,
		"order by created_at desc, id desc limit $2",
		") recent order by created_at asc, id asc",
	)
}

func TestSideChannelTerminalStages(t *testing.T) {
	assertQueryContains(t, "booking", confirmBookingQuery,
		"conversation_stage = 'booked'", "is_qualified = true", "qualified_at = coalesce(qualified_at, now())")
	assertQueryContains(t, "opt-out", optOutQuery,
		"conversation_stage = 'opted_out'", "is_opted_out = true", "opted_out_at = coalesce(opted_out_at, now())")
}
