package block

import (
	"math/big"
	"strings"

	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/pkg/errors"
)

// CoinbaseRewardOverhead is reserved on top of the coinbase's own size, since its amount
// is only known after selection and its encoding grows with it.
const CoinbaseRewardOverhead = 20

// Template is one mining attempt's candidate block. It is never reused across attempts.
type Template struct {
	// Prefix is the hash input without the nonce
	Prefix string
	// Transactions starts with the coinbase
	Transactions []node.Transaction
	Timestamp    int64

	MerkleRoot   string
	PreviousHash string
	Target       *big.Int

	// Size is the serialized size charged against the block size limit
	Size  int
	Fees  int64
	Limit int
}

// AssembleTemplate builds a template from the pending pool and a chain state snapshot.
// Pending transactions are taken in the given order until the next one would exceed
// the size budget; the coinbase pays block_reward plus the fees of those included.
func AssembleTemplate(pending []node.Transaction, state *node.ChainState, minerAddress string, timestamp int64) (*Template, error) {
	if state == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "assemble_template", "no chain state")
	}
	if state.Difficulty == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "assemble_template", "chain state has no difficulty")
	}
	if minerAddress == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "assemble_template", "miner address is required")
	}

	coinbase := node.Transaction{
		Timestamp: timestamp,
		Receiver:  minerAddress,
	}

	used := SerializedSize(coinbase) + CoinbaseRewardOverhead
	txs := make([]node.Transaction, 1, len(pending)+1)

	var fees int64
	for _, tx := range pending {
		size := SerializedSize(tx)
		if used+size > state.BlockSize {
			break
		}
		used += size
		fees += tx.Fee
		txs = append(txs, tx)
	}

	coinbase.Amount = state.BlockReward + fees
	txs[0] = coinbase

	merkleRoot := BuildMerkleRoot(txs)

	return &Template{
		Prefix:       HashPrefix(state.Version, state.PreviousHash, merkleRoot, timestamp, state.Difficulty),
		Transactions: txs,
		Timestamp:    timestamp,
		MerkleRoot:   merkleRoot,
		PreviousHash: state.PreviousHash,
		Target:       state.Difficulty,
		Size:         used,
		Fees:         fees,
		Limit:        state.BlockSize,
	}, nil
}

// HashPrefix builds the hash input the node recomputes for a block, minus the nonce:
// version ‖ rev(previous_hash) ‖ rev(merkle_root) ‖ enc(timestamp) ‖ enc(difficulty).
func HashPrefix(version, previousHash, merkleRoot string, timestamp int64, difficulty *big.Int) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteString(ReverseBytePairs(previousHash))
	b.WriteString(ReverseBytePairs(merkleRoot))
	b.WriteString(EncodeInt(timestamp))
	b.WriteString(EncodeBig(difficulty))
	return b.String()
}

// Coinbase returns the template's coinbase transaction
func (t *Template) Coinbase() node.Transaction {
	return t.Transactions[0]
}

// Block returns the submission body for a solved nonce
func (t *Template) Block(nonce uint64) *node.SolvedBlock {
	txs := make([]node.Transaction, len(t.Transactions))
	copy(txs, t.Transactions)

	return &node.SolvedBlock{
		Transactions: txs,
		Nonce:        nonce,
		Timestamp:    t.Timestamp,
	}
}
