// Package pow implements the nonce search: hashing prefix‖decimal(nonce) until the digest,
// read as a big-endian unsigned integer, falls below the difficulty target.
package pow

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/math/uint256"
)

// Status is the outcome of a search
type Status int

const (
	// Found means a nonce below the target was found
	Found Status = iota
	// Aborted means the stale check fired before a solution was found
	Aborted
	// Exhausted means every nonce in the range was tried
	Exhausted
)

// String returns string representation of the status
func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Aborted:
		return "aborted"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DefaultCheckInterval is the number of hashes between stale checks
const DefaultCheckInterval = 4096

// NonceRange is the half-open interval [Start, End) of nonces to try
type NonceRange struct {
	Start uint64
	End   uint64
}

// Result describes how a search ended
type Result struct {
	Status Status
	Nonce  uint64
	// Hash is the lowercase hex digest of the winning nonce
	Hash string
	// Hashes counts digests computed during the search
	Hashes uint64
}

// Searcher runs the hot loop. The zero value checks staleness every DefaultCheckInterval hashes.
type Searcher struct {
	// CheckInterval is how many hashes run between calls to the stale check
	CheckInterval uint64
	// Meter, if set, receives hash counts at every stale check
	Meter *Meter
}

// Search tries every nonce in rng against target. stale is consulted before the first
// hash and then every CheckInterval hashes; when it reports true the search is Aborted.
// A target at or below zero can never be met. A target of 2^256 or more accepts any digest.
func (s *Searcher) Search(prefix string, target *big.Int, rng NonceRange, stale func() bool) Result {
	interval := s.CheckInterval
	if interval == 0 {
		interval = DefaultCheckInterval
	}

	cmp := newTargetComparator(target)

	h := sha256.New()
	h.Write([]byte(prefix))
	midstate, err := h.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		panic("pow: sha256 state not marshalable: " + err.Error())
	}
	restore := h.(encoding.BinaryUnmarshaler)

	var (
		digest  [sha256.Size]byte
		buf     = make([]byte, 0, 20)
		done    uint64
		flushed uint64
	)

	flush := func() {
		if s.Meter != nil && done > flushed {
			s.Meter.Add(done - flushed)
			flushed = done
		}
	}

	for nonce := rng.Start; nonce < rng.End; nonce++ {
		if done%interval == 0 {
			flush()
			if stale != nil && stale() {
				return Result{Status: Aborted, Hashes: done}
			}
		}

		if err := restore.UnmarshalBinary(midstate); err != nil {
			panic("pow: sha256 state not restorable: " + err.Error())
		}
		buf = strconv.AppendUint(buf[:0], nonce, 10)
		h.Write(buf)
		h.Sum(digest[:0])
		done++

		if cmp.meets(&digest) {
			flush()
			return Result{
				Status: Found,
				Nonce:  nonce,
				Hash:   hex.EncodeToString(digest[:]),
				Hashes: done,
			}
		}
	}

	flush()
	return Result{Status: Exhausted, Hashes: done}
}

// targetComparator compares digests against a fixed target without allocating
type targetComparator struct {
	target uint256.Uint256
	always bool
	never  bool
}

func newTargetComparator(target *big.Int) *targetComparator {
	c := &targetComparator{}
	switch {
	case target == nil || target.Sign() <= 0:
		c.never = true
	case target.BitLen() > 256:
		c.always = true
	default:
		c.target.SetBig(target)
	}
	return c
}

func (c *targetComparator) meets(digest *[sha256.Size]byte) bool {
	if c.never {
		return false
	}
	if c.always {
		return true
	}
	var v uint256.Uint256
	v.SetBytes(digest)
	return v.Lt(&c.target)
}

// BlockHash returns the hex digest of prefix‖decimal(nonce), the value the node checks
func BlockHash(prefix string, nonce uint64) string {
	h := chainhash.HashH([]byte(prefix + strconv.FormatUint(nonce, 10)))
	return hex.EncodeToString(h[:])
}

// MeetsTarget reports whether a hex digest, read as an unsigned integer, is below target
func MeetsTarget(hash string, target *big.Int) bool {
	if target == nil {
		return false
	}
	v, ok := new(big.Int).SetString(hash, 16)
	if !ok {
		return false
	}
	return v.Cmp(target) < 0
}
