// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestEvaluateGradient(t *testing.T) {
	oracleErr := errors.New("model failed")

	tests := []struct {
		name    string
		fn      GradientFunc
		wantErr bool
	}{
		{
			name: "valid",
			fn: func(_ context.Context, theta []float64) (float64, []float64, error) {
				return -1, []float64{-theta[0], -theta[1]}, nil
			},
		},
		{
			name: "oracle error",
			fn: func(context.Context, []float64) (float64, []float64, error) {
				return 0, nil, oracleErr
			},
			wantErr: true,
		},
		{
			name: "nan log density",
			fn: func(context.Context, []float64) (float64, []float64, error) {
				return math.NaN(), []float64{0, 0}, nil
			},
			wantErr: true,
		},
		{
			name: "infinite gradient",
			fn: func(context.Context, []float64) (float64, []float64, error) {
				return 0, []float64{0, math.Inf(1)}, nil
			},
			wantErr: true,
		},
		{
			name: "wrong length",
			fn: func(context.Context, []float64) (float64, []float64, error) {
				return 0, []float64{0}, nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logp, grad, err := EvaluateGradient(context.Background(), tt.fn, []float64{1, 2})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGradient) {
					t.Fatalf("error = %v, want ErrInvalidGradient", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logp != -1 || grad[0] != -1 || grad[1] != -2 {
				t.Errorf("got (%v, %v)", logp, grad)
			}
		})
	}
}

func TestEvaluateGradient_PreservesOracleError(t *testing.T) {
	oracleErr := errors.New("model failed")
	fn := GradientFunc(func(context.Context, []float64) (float64, []float64, error) {
		return 0, nil, oracleErr
	})
	_, _, err := EvaluateGradient(context.Background(), fn, []float64{0})
	if !errors.Is(err, oracleErr) {
		t.Errorf("error = %v, want it to wrap the oracle error", err)
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{0, -1, 1e300}) {
		t.Error("finite values reported as non-finite")
	}
	if AllFinite([]float64{0, math.NaN()}) {
		t.Error("NaN not detected")
	}
	if AllFinite([]float64{math.Inf(-1)}) {
		t.Error("-Inf not detected")
	}
}
