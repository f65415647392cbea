/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package hashchain implements the append-only SHA-256 chain used for
// relationship custody proofs (one chain per owner) and the global audit log.
//
// Every function here is pure. Resolving the tail of a chain and persisting
// the returned link is the caller's job, and the caller must serialize
// "read tail, append next" per chain or two links can claim the same
// predecessor.
package hashchain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// GenesisDigest is the previous digest of the first link in any chain.
var GenesisDigest = strings.Repeat("0", 64)

var (
	ErrInvalidDigest  = errors.New("invalid digest")
	ErrDigestMismatch = errors.New("digest does not match payload")
	ErrBrokenChain    = errors.New("chain link does not reference its predecessor")
)

var digestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Event is anything that can be appended to a chain. Canonical must return the
// same bytes for the same event and prevDigest, and the encoding must carry
// prevDigest under the "prevHash" key.
type Event interface {
	Canonical(prevDigest string) ([]byte, error)
}

// ChainLink is one immutable entry of a chain.
type ChainLink struct {
	SequenceKey      string
	PayloadDigest    string
	PrevDigest       string
	CanonicalPayload []byte
}

// Proof is the base64 form of the canonical payload. Anyone holding
// (PayloadDigest, Proof) can recompute the digest without ledger access.
func (l ChainLink) Proof() string {
	return base64.StdEncoding.EncodeToString(l.CanonicalPayload)
}

// IsDigest reports whether s is a lowercase 64-character hex digest.
func IsDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// Digest returns the lowercase hex SHA-256 of payload.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Append builds the link that follows prevDigest. An empty prevDigest is
// treated as the genesis digest.
func Append(prevDigest string, event Event) (ChainLink, error) {
	if prevDigest == "" {
		prevDigest = GenesisDigest
	}
	if !IsDigest(prevDigest) {
		return ChainLink{}, fmt.Errorf("%w: previous digest %q", ErrInvalidDigest, prevDigest)
	}

	payload, err := event.Canonical(prevDigest)
	if err != nil {
		return ChainLink{}, fmt.Errorf("unable to canonicalize event: %w", err)
	}

	return ChainLink{
		PayloadDigest:    Digest(payload),
		PrevDigest:       prevDigest,
		CanonicalPayload: payload,
	}, nil
}

// LinkFromProof rebuilds a stored link from its digest, back-reference and
// base64 proof so whole chains can be checked with VerifyChain.
func LinkFromProof(sequenceKey, digest, prevDigest, proof string) (ChainLink, error) {
	payload, err := base64.StdEncoding.DecodeString(proof)
	if err != nil {
		return ChainLink{}, fmt.Errorf("unable to decode proof: %w", err)
	}
	return ChainLink{
		SequenceKey:      sequenceKey,
		PayloadDigest:    digest,
		PrevDigest:       prevDigest,
		CanonicalPayload: payload,
	}, nil
}

// VerifyPayload recomputes the digest of payload and compares it to digest.
func VerifyPayload(digest string, payload []byte) bool {
	if !IsDigest(digest) || len(payload) == 0 {
		return false
	}
	return Digest(payload) == digest
}

// Verify checks a digest against a base64 proof. Malformed input of any kind
// yields false.
func Verify(digest, proof string) bool {
	if !IsDigest(digest) {
		return false
	}
	payload, err := base64.StdEncoding.DecodeString(proof)
	if err != nil {
		return false
	}
	return VerifyPayload(digest, payload)
}

// VerifyChain walks links in append order and checks every digest and every
// back-reference, starting from the genesis digest.
func VerifyChain(links []ChainLink) error {
	expectedPrev := GenesisDigest
	for i, link := range links {
		if !VerifyPayload(link.PayloadDigest, link.CanonicalPayload) {
			return fmt.Errorf("link %d (%s): %w", i, link.SequenceKey, ErrDigestMismatch)
		}
		embedded, err := embeddedPrev(link.CanonicalPayload)
		if err != nil {
			return fmt.Errorf("link %d (%s): %w", i, link.SequenceKey, err)
		}
		if link.PrevDigest != expectedPrev || embedded != expectedPrev {
			return fmt.Errorf("link %d (%s): expected prev %s, got %s: %w",
				i, link.SequenceKey, expectedPrev, link.PrevDigest, ErrBrokenChain)
		}
		expectedPrev = link.PayloadDigest
	}
	return nil
}

// Tail returns the digest a new link must reference, i.e. the digest of the
// last link or the genesis digest for an empty chain.
func Tail(links []ChainLink) string {
	if len(links) == 0 {
		return GenesisDigest
	}
	return links[len(links)-1].PayloadDigest
}

func embeddedPrev(payload []byte) (string, error) {
	var head struct {
		PrevHash string `json:"prevHash"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("unable to decode canonical payload: %w", err)
	}
	return head.PrevHash, nil
}
