package jobs

import (
	"context"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/job"
)

// ExtractContractsJob derives contracts from successful create frames. It
// performs no network I/O.
type ExtractContractsJob struct{}

func NewExtractContractsJob() *ExtractContractsJob { return &ExtractContractsJob{} }

func (j *ExtractContractsJob) Name() string { return "extract_contracts" }

func (j *ExtractContractsJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindTrace)
}

func (j *ExtractContractsJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindContract)
}

func (j *ExtractContractsJob) Collect(context.Context, *job.Buffer) error { return nil }

func (j *ExtractContractsJob) Process(_ context.Context, buf *job.Buffer) error {
	traces, err := job.Get[domain.Trace](buf, domain.KindTrace)
	if err != nil {
		return err
	}

	var contracts []domain.Contract
	for _, t := range traces {
		if t.TraceType != "create" || t.Status != 1 || t.To == "" {
			continue
		}
		contracts = append(contracts, domain.Contract{
			Address:         t.To,
			Deployer:        t.From,
			TransactionHash: t.TransactionHash,
			BlockNumber:     t.BlockNumber,
			BlockHash:       t.BlockHash,
			BlockTimestamp:  t.BlockTimestamp,
			Bytecode:        t.Output,
		})
	}
	job.Put(buf, domain.KindContract, contracts)
	return nil
}

func (j *ExtractContractsJob) Close() error { return nil }
