// Package block assembles candidate blocks: wire encoding helpers, the merkle root,
// and the size-bounded block template with its hash-input prefix.
package block

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bardlex/gominer/internal/node"
)

// ReverseBytePairs reverses the order of the two-character groups in s.
// A trailing odd character forms its own group: "abcde" becomes "ecdab".
// Characters are code points, so non-ASCII addresses hash the way the node hashes them.
func ReverseBytePairs(s string) string {
	if isASCII(s) {
		return reversePairs(s, len(s), func(i, j int) string { return s[i:j] })
	}
	r := []rune(s)
	return reversePairs(s, len(r), func(i, j int) string { return string(r[i:j]) })
}

// reversePairs walks n characters in groups of two from the end; group returns the
// characters [i, j) as a string.
func reversePairs(s string, n int, group func(i, j int) string) string {
	if n <= 2 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	end := n
	// The last group is the short one when the length is odd.
	if n%2 == 1 {
		b.WriteString(group(end-1, end))
		end--
	}
	for i := end - 2; i >= 0; i -= 2 {
		b.WriteString(group(i, i+2))
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// EncodeInt renders x the way the node does: lowercase hex with a 0x prefix,
// negative values as -0x...
func EncodeInt(x int64) string {
	if x < 0 {
		// uint64 conversion keeps math.MinInt64 representable
		return "-0x" + strconv.FormatUint(uint64(-(x+1))+1, 16)
	}
	return "0x" + strconv.FormatInt(x, 16)
}

// EncodeBig is EncodeInt for arbitrary precision values such as the difficulty target.
func EncodeBig(x *big.Int) string {
	if x == nil {
		return "0x0"
	}
	if x.Sign() < 0 {
		return "-0x" + new(big.Int).Abs(x).Text(16)
	}
	return "0x" + x.Text(16)
}

// SerializedSize is the number of bytes tx occupies in the compact JSON encoding
// sent to the node. It is the unit of the block size budget.
func SerializedSize(tx node.Transaction) int {
	data, err := json.Marshal(tx)
	if err != nil {
		// Transaction holds only strings and integers
		panic("block: transaction not encodable: " + err.Error())
	}
	return len(data)
}
