package hashchain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEvent_KeyOrderIndependent(t *testing.T) {
	actor := int64(3)
	entity := int64(12)
	at := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

	a := AuditEvent{
		ActorId: &actor, Action: "deal_stage_updated", EntityType: "deal", EntityId: &entity,
		PreviousState: json.RawMessage(`{"stage":"closing","value":1000000}`),
		NewState:      json.RawMessage(`{"b":2,"a":{"y":2,"x":1}}`),
		CreatedAt:     at,
	}
	b := a
	b.PreviousState = json.RawMessage(`{"value":1000000, "stage":"closing"}`)
	b.NewState = json.RawMessage(`{"a":{"x":1,"y":2},"b":2}`)

	la, err := Append(GenesisDigest, a)
	require.NoError(t, err)
	lb, err := Append(GenesisDigest, b)
	require.NoError(t, err)

	assert.Equal(t, la.PayloadDigest, lb.PayloadDigest)
}

func TestAuditEvent_NullsForAbsentFields(t *testing.T) {
	ev := AuditEvent{Action: "login", EntityType: "user", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	link, err := Append(GenesisDigest, ev)
	require.NoError(t, err)

	want := `{"prevHash":"` + GenesisDigest + `","userId":null,"action":"login","entityType":"user","entityId":null,` +
		`"previousState":null,"newState":null,"metadata":null,"createdAt":"2026-01-01T00:00:00.000Z"}`
	assert.Equal(t, want, string(link.CanonicalPayload))
}

func TestAuditEvent_PreservesLargeNumbers(t *testing.T) {
	ev := AuditEvent{
		Action: "payout_created", EntityType: "payout",
		NewState:  json.RawMessage(`{"amount":12345678901234567890}`),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	link, err := Append(GenesisDigest, ev)
	require.NoError(t, err)

	assert.Contains(t, string(link.CanonicalPayload), `"newState":{"amount":12345678901234567890}`)
}

func TestAuditEvent_InvalidStateJSON(t *testing.T) {
	ev := AuditEvent{Action: "x", EntityType: "y", NewState: json.RawMessage(`{broken`)}
	_, err := Append(GenesisDigest, ev)
	assert.Error(t, err)
}

func TestCustodyEvent_TimestampNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := CustodyEvent{OwnerId: 1, ContactId: 2, EstablishedAt: time.Date(2026, 1, 1, 2, 0, 0, 0, loc)}
	utc := CustodyEvent{OwnerId: 1, ContactId: 2, EstablishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	a, err := Append(GenesisDigest, local)
	require.NoError(t, err)
	b, err := Append(GenesisDigest, utc)
	require.NoError(t, err)
	assert.Equal(t, a.PayloadDigest, b.PayloadDigest)
}
