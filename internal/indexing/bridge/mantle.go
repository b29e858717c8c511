package bridge

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const mantleEventsJSON = `[
	{"type":"event","name":"ConfirmDataStore","inputs":[
		{"name":"dataStoreId","type":"uint32"},{"name":"headerHash","type":"bytes32"}]}
]`

var mantleABI = mustABI(mantleEventsJSON)

type mantleDA struct {
	manager string
}

// NewMantleDA builds the Mantle data-availability decoder over the
// DataLayr service manager.
func NewMantleDA(p Params) (Decoder, error) {
	addr, err := p.contract("data_layr_service_manager")
	if err != nil {
		return nil, err
	}
	return &mantleDA{manager: addr}, nil
}

func (d *mantleDA) Name() string { return "mantle_da" }

func (d *mantleDA) Decode(tx *Tx) (Result, error) {
	var res Result
	ev := mantleABI.Events["ConfirmDataStore"]
	for _, l := range logsFrom(tx.Logs, d.manager) {
		if !isTopic(l, ev) {
			continue
		}
		args, err := unpackLog(ev, l)
		if err != nil {
			return res, err
		}
		res.DABatches = append(res.DABatches, domain.DABatch{
			Family:            domain.BridgeMantle,
			DataStoreID:       uint64(args[0].(uint32)),
			HeaderHash:        strings.ToLower(common.Hash(args[1].([32]byte)).Hex()),
			L1TransactionHash: tx.Transaction.Hash,
			L1BlockNumber:     tx.Block.Number,
			L1Timestamp:       tx.Block.Timestamp,
		})
	}
	return res, nil
}
