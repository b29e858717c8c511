package domain

type TokenType string

const (
	TokenTypeERC20   TokenType = "ERC20"
	TokenTypeERC721  TokenType = "ERC721"
	TokenTypeERC1155 TokenType = "ERC1155"
)

// TokenTransfer is one token movement decoded from a log. ERC1155 batch
// transfers expand to one row per id, distinguished by BatchIndex.
type TokenTransfer struct {
	TransactionHash string    `db:"transaction_hash"`
	LogIndex        uint64    `db:"log_index"`
	BatchIndex      int       `db:"batch_index"`
	BlockNumber     uint64    `db:"block_number"`
	BlockHash       string    `db:"block_hash"`
	BlockTimestamp  uint64    `db:"block_timestamp"`
	TokenAddress    string    `db:"token_address"`
	TokenType       TokenType `db:"token_type"`
	From            string    `db:"from_address"`
	To              string    `db:"to_address"`
	Value           string    `db:"value"`
	TokenID         string    `db:"token_id"`
}

func (*TokenTransfer) Kind() DataKind { return KindTokenTransfer }

// Token holds contract metadata for a token first seen at BlockNumber.
type Token struct {
	Address     string    `db:"address"`
	TokenType   TokenType `db:"token_type"`
	Name        string    `db:"name"`
	Symbol      string    `db:"symbol"`
	Decimals    *uint8    `db:"decimals"`
	BlockNumber uint64    `db:"block_number"`
}

func (*Token) Kind() DataKind { return KindToken }

// TokenBalance is the balance of a holder for a token at a block height.
type TokenBalance struct {
	Address        string    `db:"address"`
	TokenAddress   string    `db:"token_address"`
	TokenID        string    `db:"token_id"`
	TokenType      TokenType `db:"token_type"`
	Balance        string    `db:"balance"`
	BlockNumber    uint64    `db:"block_number"`
	BlockTimestamp uint64    `db:"block_timestamp"`
}

func (*TokenBalance) Kind() DataKind { return KindTokenBalance }

// CurrentTokenBalance is the latest known TokenBalance per holder and token.
type CurrentTokenBalance TokenBalance

func (*CurrentTokenBalance) Kind() DataKind { return KindCurrentTokenBalance }
