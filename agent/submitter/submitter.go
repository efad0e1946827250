// Package submitter adapts the Fusion REST client to the engine's
// record-submitter contract.
package submitter

import (
	"context"
	"errors"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/pkg/fusion"
)

// Fusion submits completed records to Oracle Fusion.
type Fusion struct {
	client *fusion.Client
}

func NewFusion(client *fusion.Client) (*Fusion, error) {
	if client == nil {
		return nil, errors.New("fusion client is required")
	}
	return &Fusion{client: client}, nil
}

func (f *Fusion) Submit(ctx context.Context, record contract.Record) (contract.SubmissionResult, error) {
	payload := make(map[string]string, len(record))
	for name, value := range record {
		if value != "" {
			payload[name] = value
		}
	}

	result, err := f.client.CreateSupplier(ctx, payload)
	if err != nil {
		return contract.SubmissionResult{}, err
	}
	return contract.SubmissionResult{
		Created:        result.Created(),
		SupplierID:     result.SupplierID,
		SupplierNumber: result.SupplierNumber,
		Detail:         result.Body,
	}, nil
}
