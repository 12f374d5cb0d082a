// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMCMC/pkg/ux"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/store"
)

func runInspect(cmd *cobra.Command, args []string) error {
	db, err := store.Open(store.DefaultConfig(inspectStorePath))
	if err != nil {
		return err
	}
	defer db.Close()

	samples, err := store.NewSampleStore(db, nil)
	if err != nil {
		return err
	}

	p := ux.NewPrinter(cmd.OutOrStdout())
	if len(args) == 0 {
		return listChains(cmd.Context(), samples, p)
	}
	return inspectChain(cmd.Context(), samples, args[0], p)
}

// listChains prints every stored chain with its sample count.
func listChains(ctx context.Context, samples *store.SampleStore, p *ux.Printer) error {
	chains, err := samples.Chains(ctx)
	if err != nil {
		return err
	}
	if len(chains) == 0 {
		p.Warning("no chains stored")
		return nil
	}
	fields := make([]ux.Field, 0, len(chains))
	for _, id := range chains {
		n, err := samples.Count(ctx, id)
		if err != nil {
			return err
		}
		fields = append(fields, ux.Field{Label: id, Value: strconv.Itoa(n)})
	}
	p.Summary("Stored chains", fields)
	return nil
}

// inspectChain prints the size, total weight and weighted mean of a chain.
func inspectChain(ctx context.Context, samples *store.SampleStore, chainID string, p *ux.Printer) error {
	c, err := samples.LoadCollection(ctx, chainID)
	if err != nil {
		return err
	}
	if c.Len() == 0 {
		return fmt.Errorf("chain %s has no stored samples", chainID)
	}
	p.Summary("Chain "+chainID, []ux.Field{
		{Label: "Samples", Value: strconv.Itoa(c.Len())},
		{Label: "Total weight", Value: strconv.FormatFloat(c.TotalWeight(), 'f', 6, 64)},
		{Label: "Mean", Value: ux.FormatVector(c.Mean(), 6)},
		{Label: "Variables", Value: fmt.Sprint(c.At(0).Snapshot.Names)},
	})
	return nil
}
