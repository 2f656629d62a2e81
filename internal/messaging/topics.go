package messaging

// Default topic names, used when the prefix is "miner"
const (
	TopicBlockFound   = "miner.block_found"   // worker found a nonce below target
	TopicBlockResults = "miner.block_results" // node verdict on a submitted block
)

// Topics holds the topic names for one deployment
type Topics struct {
	BlockFound   string
	BlockResults string
}

// NewTopics derives topic names from prefix. An empty prefix means "miner".
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = "miner"
	}
	return Topics{
		BlockFound:   prefix + ".block_found",
		BlockResults: prefix + ".block_results",
	}
}
