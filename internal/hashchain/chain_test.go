package hashchain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var establishedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func custody(owner, contact int64) CustodyEvent {
	return CustodyEvent{OwnerId: owner, ContactId: contact, EstablishedAt: establishedAt}
}

func TestAppend_DigestFormat(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.Len(t, link.PayloadDigest, 64)
	assert.True(t, IsDigest(link.PayloadDigest))
	assert.Equal(t, GenesisDigest, link.PrevDigest)
	assert.NotEmpty(t, link.Proof())
}

func TestAppend_CanonicalPayloadLayout(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	want := `{"ownerId":1,"contactId":2,"establishedAt":"2026-01-01T00:00:00.000Z","prevHash":"` + GenesisDigest + `"}`
	assert.Equal(t, want, string(link.CanonicalPayload))
}

func TestAppend_EmptyPrevIsGenesis(t *testing.T) {
	a, err := Append("", custody(1, 2))
	require.NoError(t, err)
	b, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.Equal(t, b.PayloadDigest, a.PayloadDigest)
}

func TestAppend_RejectsMalformedPrev(t *testing.T) {
	_, err := Append("not-a-digest", custody(1, 2))
	assert.True(t, errors.Is(err, ErrInvalidDigest))
}

func TestAppend_Deterministic(t *testing.T) {
	a, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)
	b, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.Equal(t, a.PayloadDigest, b.PayloadDigest)
	assert.Equal(t, a.CanonicalPayload, b.CanonicalPayload)
}

func TestAppend_PrevDigestChangesDigest(t *testing.T) {
	prevs := []string{
		GenesisDigest,
		strings.Repeat("a", 64),
		strings.Repeat("f", 64),
		Digest([]byte("x")),
	}
	seen := make(map[string]string)
	for _, prev := range prevs {
		link, err := Append(prev, custody(1, 2))
		require.NoError(t, err)
		if other, ok := seen[link.PayloadDigest]; ok {
			t.Fatalf("prev %s and %s produced the same digest", prev, other)
		}
		seen[link.PayloadDigest] = prev
	}
}

func TestVerify_ValidPair(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.True(t, Verify(link.PayloadDigest, link.Proof()))
	assert.True(t, VerifyPayload(link.PayloadDigest, link.CanonicalPayload))
}

func TestVerify_TamperedDigest(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.False(t, Verify("deadbeef"+strings.Repeat("0", 56), link.Proof()))
}

func TestVerify_TamperedProof(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	forged, err := json.Marshal(map[string]any{
		"ownerId": 99, "contactId": 99, "establishedAt": "tampered", "prevHash": GenesisDigest,
	})
	require.NoError(t, err)

	assert.False(t, Verify(link.PayloadDigest, base64.StdEncoding.EncodeToString(forged)))
}

func TestVerify_SingleByteFlips(t *testing.T) {
	link, err := Append(GenesisDigest, custody(7, 8))
	require.NoError(t, err)

	for i := range link.CanonicalPayload {
		flipped := append([]byte(nil), link.CanonicalPayload...)
		flipped[i] ^= 0x01
		if Verify(link.PayloadDigest, base64.StdEncoding.EncodeToString(flipped)) {
			t.Fatalf("flipping payload byte %d still verified", i)
		}
	}

	for i := range link.PayloadDigest {
		digest := []byte(link.PayloadDigest)
		if digest[i] == 'a' {
			digest[i] = 'b'
		} else {
			digest[i] = 'a'
		}
		if Verify(string(digest), link.Proof()) {
			t.Fatalf("changing digest char %d still verified", i)
		}
	}
}

func TestVerify_MalformedInput(t *testing.T) {
	link, err := Append(GenesisDigest, custody(1, 2))
	require.NoError(t, err)

	assert.False(t, Verify(strings.ToUpper(link.PayloadDigest), link.Proof()))
	assert.False(t, Verify(link.PayloadDigest[:63], link.Proof()))
	assert.False(t, Verify(link.PayloadDigest, "%%% not base64 %%%"))
	assert.False(t, Verify(link.PayloadDigest, ""))
	assert.False(t, VerifyPayload("zz", link.CanonicalPayload))
}

func buildChain(t *testing.T, n int) []ChainLink {
	t.Helper()
	var links []ChainLink
	for i := 0; i < n; i++ {
		link, err := Append(Tail(links), custody(1, int64(i+10)))
		require.NoError(t, err)
		links = append(links, link)
	}
	return links
}

func TestVerifyChain(t *testing.T) {
	assert.NoError(t, VerifyChain(nil))
	assert.NoError(t, VerifyChain(buildChain(t, 5)))
}

func TestVerifyChain_DetectsTamperedPayload(t *testing.T) {
	links := buildChain(t, 3)
	links[1].CanonicalPayload = []byte(strings.Replace(string(links[1].CanonicalPayload), `"contactId":11`, `"contactId":12`, 1))

	err := VerifyChain(links)
	assert.True(t, errors.Is(err, ErrDigestMismatch))
}

func TestVerifyChain_DetectsFork(t *testing.T) {
	links := buildChain(t, 2)
	// Second link re-appended against genesis: a competing claim on the same predecessor.
	fork, err := Append(GenesisDigest, custody(1, 99))
	require.NoError(t, err)
	links = append(links[:1], fork)

	err = VerifyChain(links)
	assert.True(t, errors.Is(err, ErrBrokenChain))
}

func TestTail(t *testing.T) {
	assert.Equal(t, GenesisDigest, Tail(nil))
	links := buildChain(t, 2)
	assert.Equal(t, links[1].PayloadDigest, Tail(links))
}

func TestLinkFromProof_RoundTrip(t *testing.T) {
	link, err := Append("", CustodyEvent{OwnerId: 1, ContactId: 2, EstablishedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	rebuilt, err := LinkFromProof("1", link.PayloadDigest, link.PrevDigest, link.Proof())
	require.NoError(t, err)
	assert.Equal(t, link.CanonicalPayload, rebuilt.CanonicalPayload)
	assert.NoError(t, VerifyChain([]ChainLink{rebuilt}))

	_, err = LinkFromProof("1", link.PayloadDigest, link.PrevDigest, "%%%")
	assert.Error(t, err)
}
