package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/custody"
	"relationship-custody-go/internal/database"
	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/settlement"
	"relationship-custody-go/internal/store"
	"relationship-custody-go/internal/trust"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *httptest.Server
	db      *database.Service
	custody *custody.Service
	users   []*models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	locker := lock.NewKeyedMutex()
	recorder := auditlog.NewRecorder(db, locker)
	custodySvc := custody.NewService(db, locker, recorder, events.Noop{})
	settlementSvc := settlement.NewService(db, trust.NewService(db, trust.ModeNormalized), recorder, locker,
		settlement.NewFeeSchedule(decimal.RequireFromString("0.02"), "USD"))

	f := &fixture{db: db, custody: custodySvc}
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		u, err := db.CreateUser(ctx, store.CreateUserParams{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
		f.users = append(f.users, u)
	}

	f.server = httptest.NewServer(NewService(custodySvc, recorder, settlementSvc, db).Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) register(t *testing.T, owner, contact int) *models.Relationship {
	t.Helper()
	r, err := f.custody.RegisterRelationship(context.Background(), store.CustodyParams{
		OwnerId:   f.users[owner].Id,
		ContactId: f.users[contact].Id,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeVerify(t *testing.T, resp *http.Response) models.VerifyResult {
	t.Helper()
	var result models.VerifyResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestVerify_AlwaysAnswers200(t *testing.T) {
	f := newFixture(t)
	r := f.register(t, 0, 1)

	resp := f.get(t, "/api/verify/relationship/"+r.TimestampHash)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeVerify(t, resp)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.EstablishedAt)

	for _, hash := range []string{
		strings.Repeat("0", 64),
		"not-a-digest",
		strings.ToUpper(r.TimestampHash),
	} {
		resp := f.get(t, "/api/verify/relationship/"+hash)
		assert.Equal(t, http.StatusOK, resp.StatusCode, hash)
		result := decodeVerify(t, resp)
		assert.False(t, result.Valid, hash)
		assert.Empty(t, result.EstablishedAt, hash)
	}
}

func TestAuditExport_PagesWithCursor(t *testing.T) {
	f := newFixture(t)
	f.register(t, 0, 1)
	f.register(t, 0, 2)
	f.register(t, 1, 3)

	resp := f.get(t, "/api/audit/export?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	next := resp.Header.Get(nextCursorHeader)
	require.NotEmpty(t, next)

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, auditlog.CSVHeader, rows[0])
	assert.Equal(t, "relationship_registered", rows[1][2])

	resp = f.get(t, "/api/audit/export?limit=2&cursor="+next)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(nextCursorHeader))
	rows, err = csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAuditExport_RejectsBadParameters(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/audit/export?limit=abc").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/audit/export?limit=0").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/audit/export?cursor=garbage").StatusCode)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/audit/export?limit=100000").StatusCode)
}

func TestStatement(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/payouts/1/statement")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var statement models.PayoutStatement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statement))
	assert.Equal(t, f.users[0].Id, statement.UserId)
	assert.Empty(t, statement.Payouts)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/payouts/999/statement").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/payouts/abc/statement").StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.get(t, "/health").StatusCode)

	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "relationship_custody_http_request_duration_seconds")
}
