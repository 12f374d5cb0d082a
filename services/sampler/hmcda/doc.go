// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hmcda implements Hamiltonian Monte Carlo with dual-averaging
// step-size adaptation.
//
// The kernel itself is a thin parameterization: it holds the target
// acceptance rate δ and the target path length λ, and forwards each step to
// an Integrator. During the first Adapts run steps the integrator also
// receives a StepSizeAdaptor, which it feeds with each trajectory's
// acceptance probability. When the window closes the adaptor is frozen at
// its averaged step size.
//
// LeapfrogIntegrator and DualAveraging are the reference collaborators
// (Hoffman and Gelman, 2014, Algorithms 4 and 5). Callers may supply their
// own.
package hmcda
