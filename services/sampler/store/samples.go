// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMCMC/pkg/validation"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
)

const sampleKeyPrefix = "sample/"

// ErrInvalidChainID is returned for a chain ID that is not key-safe.
var ErrInvalidChainID = errors.New("invalid chain id")

// SampleStore persists emitted samples per chain.
//
// Description:
//
//	SampleStore implements kernel.SampleSink, so it can be passed as the
//	sink of kernel.Run or an IPMCMC chain. Each Append is its own
//	transaction; a run that fails midway leaves the samples emitted before
//	the failure.
//
// Thread Safety: Safe for concurrent use.
type SampleStore struct {
	db     *DB
	logger *slog.Logger
}

var _ kernel.SampleSink = (*SampleStore)(nil)

// NewSampleStore wraps an open database. A nil logger uses slog.Default().
func NewSampleStore(db *DB, logger *slog.Logger) (*SampleStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleStore{db: db, logger: logger}, nil
}

// Append stores one sample under its chain and index.
func (s *SampleStore) Append(ctx context.Context, chainID string, sample kernel.Sample) error {
	if err := checkChainID(chainID); err != nil {
		return err
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample %d: %w", sample.Index, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(sampleKey(chainID, sample.Index), data)
	})
}

// Load returns every stored sample of a chain in emission order.
//
// Outputs:
//   - []kernel.Sample: The samples; empty if the chain is unknown.
//   - error: Non-nil on an invalid chain ID, cancellation or a corrupt value.
func (s *SampleStore) Load(ctx context.Context, chainID string) ([]kernel.Sample, error) {
	if err := checkChainID(chainID); err != nil {
		return nil, err
	}
	var samples []kernel.Sample
	prefix := chainPrefix(chainID)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var sample kernel.Sample
				if err := json.Unmarshal(val, &sample); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				samples = append(samples, sample)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load chain %s: %w", chainID, err)
	}
	return samples, nil
}

// LoadCollection loads a chain into a SampleCollection.
func (s *SampleStore) LoadCollection(ctx context.Context, chainID string) (*kernel.SampleCollection, error) {
	samples, err := s.Load(ctx, chainID)
	if err != nil {
		return nil, err
	}
	c := kernel.NewSampleCollection(len(samples))
	for _, sample := range samples {
		if _, err := c.Append(sample.Weight, sample.Snapshot, sample.Stats); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Count returns the number of stored samples of a chain.
func (s *SampleStore) Count(ctx context.Context, chainID string) (int, error) {
	if err := checkChainID(chainID); err != nil {
		return 0, err
	}
	n := 0
	prefix := chainPrefix(chainID)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Chains returns the IDs of every stored chain in key order.
func (s *SampleStore) Chains(ctx context.Context) ([]string, error) {
	var chains []string
	prefix := []byte(sampleKeyPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			id, _, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			if len(chains) == 0 || chains[len(chains)-1] != id {
				chains = append(chains, id)
			}
		}
		return nil
	})
	return chains, err
}

// Delete removes every sample of a chain.
func (s *SampleStore) Delete(chainID string) error {
	if err := checkChainID(chainID); err != nil {
		return err
	}
	if err := s.db.DropPrefix(chainPrefix(chainID)); err != nil {
		return fmt.Errorf("delete chain %s: %w", chainID, err)
	}
	s.logger.Debug("chain deleted", slog.String("chain_id", chainID))
	return nil
}

func checkChainID(chainID string) error {
	if err := validation.ValidateChainID(chainID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	return nil
}

func chainPrefix(chainID string) []byte {
	return []byte(sampleKeyPrefix + chainID + "/")
}

func sampleKey(chainID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/%012d", sampleKeyPrefix, chainID, index))
}
