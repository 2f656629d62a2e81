package block

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bardlex/gominer/internal/node"
)

// LeafHash returns the merkle leaf for tx: the hex SHA-256 of the byte-pair reversed
// timestamp, sender, receiver, amount and fee, each reversed on its own.
func LeafHash(tx node.Transaction) string {
	var b strings.Builder
	b.WriteString(ReverseBytePairs(EncodeInt(tx.Timestamp)))
	b.WriteString(ReverseBytePairs(tx.Sender))
	b.WriteString(ReverseBytePairs(tx.Receiver))
	b.WriteString(ReverseBytePairs(EncodeInt(tx.Amount)))
	b.WriteString(ReverseBytePairs(EncodeInt(tx.Fee)))

	return hashHex(b.String())
}

// BuildMerkleRoot computes the root over txs in the given order. A level with an odd
// number of hashes pairs its last hash with itself, so a single transaction yields
// SHA256(leaf‖leaf). An empty list yields "".
func BuildMerkleRoot(txs []node.Transaction) string {
	if len(txs) == 0 {
		return ""
	}

	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = LeafHash(tx)
	}

	return reduceLevels(level)
}

// reduceLevels hashes pairs until one hash remains. It always runs at least once.
func reduceLevels(level []string) string {
	for {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashHex(left+right))
		}

		if len(next) == 1 {
			return next[0]
		}
		level = next
	}
}

// hashHex is the lowercase hex SHA-256 digest of the UTF-8 bytes of s.
// chainhash.Hash.String reverses bytes, so the digest is encoded directly.
func hashHex(s string) string {
	h := chainhash.HashH([]byte(s))
	return hex.EncodeToString(h[:])
}
