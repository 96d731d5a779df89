// Package bridge implements the inbound message defense layer. Every
// cross-chain message passes three conjunctive gates before it reaches vault
// logic: origin verification, structural/replay filtering, and a consensus
// check for price-bearing payloads. A message that fails any gate is dropped
// and raises a defense alert.
package bridge

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnknownSourceChain   = errors.New("source chain is not registered")
	ErrInvalidOriginProof   = errors.New("invalid origin proof")
	ErrMalformedMessage     = errors.New("malformed message envelope")
	ErrMessageExpired       = errors.New("message is past its validity window")
	ErrReplayDetected       = errors.New("message id already seen")
	ErrConsensusMismatch    = errors.New("payload value deviates from oracle consensus")
	ErrConsensusUnavailable = errors.New("no fresh oracle consensus to check payload against")
)

// TokenAmount is one token transfer leg carried by a message.
type TokenAmount struct {
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

// Envelope is the chain-agnostic wire form of an inbound message.
type Envelope struct {
	MessageID          string        `json:"message_id"`
	SourceChainID      uint64        `json:"source_chain_id"`
	DestinationChainID uint64        `json:"destination_chain_id"`
	Sender             string        `json:"sender"`
	Receiver           string        `json:"receiver"`
	PayloadKind        string        `json:"payload_kind"`
	Payload            []byte        `json:"payload"`
	TokenAmounts       []TokenAmount `json:"token_amounts,omitempty"`
	FeeToken           string        `json:"fee_token,omitempty"`
	ExtraArgs          []byte        `json:"extra_args,omitempty"`
	Timestamp          int64         `json:"timestamp"`
}

// PayloadKindNAV marks payloads that carry a NAV value and must clear the
// consensus gate.
const PayloadKindNAV = "nav"

const envelopeDomain = "vaultx:bridge:v1"

// Digest is the canonical blake2b-256 digest the origin chain signs.
func (e *Envelope) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(envelopeDomain))
	h.Write([]byte(e.MessageID))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], e.SourceChainID)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], e.DestinationChainID)
	h.Write(buf[:])

	h.Write([]byte(e.Sender))
	h.Write([]byte(e.Receiver))
	h.Write([]byte(e.PayloadKind))
	h.Write(e.Payload)
	for _, ta := range e.TokenAmounts {
		h.Write([]byte(ta.Token))
		binary.LittleEndian.PutUint64(buf[:], ta.Amount)
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(e.Timestamp))
	h.Write(buf[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
