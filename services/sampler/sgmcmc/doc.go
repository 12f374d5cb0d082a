// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sgmcmc implements the stochastic-gradient MCMC kernels.
//
// Kernels:
//
//	SGHMC  stochastic gradient Hamiltonian Monte Carlo with friction
//	       (Chen, Fox and Guestrin, 2014)
//	SGLD   stochastic gradient Langevin dynamics with a polynomially
//	       decaying step size (Welling and Teh, 2011)
//
// Neither kernel performs a Metropolis correction, so every step is
// reported as accepted. Both update the restricted sub-vector in
// unconstrained space and map it back before returning.
//
// Usage:
//
//	k, err := sgmcmc.NewSGHMC(1000, 0.01, 0.1, "mu")
//	chain, err := k.NewChain(oracle, kernel.NewSource(seed))
//	res, err := kernel.Run(ctx, chain, state, kernel.RunOptions{Iterations: k.Iterations()})
package sgmcmc
