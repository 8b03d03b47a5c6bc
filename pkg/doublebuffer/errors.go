// Copyright the loopfuse contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package doublebuffer implements the double-buffer loop transformation
// pass: given a fusion's IterDomainGraphs and a lowered kernel
// expression list, it splits annotated loops into prologue, main,
// optional circular-init-prologue, and epilogue stages, inserting the
// synchronization and pointer-increment bookkeeping that lets
// asynchronous global-to-shared loads overlap with compute.
package doublebuffer

import "github.com/kerngen/loopfuse/pkg/ferr"

// Re-exported so callers of this package never need to import pkg/ferr
// directly; the kind table itself lives there to avoid a cyclic import
// with pkg/idgraph (which raises ParallelTypeConflict/SelfMapping).
type (
	// ErrorKind identifies which §7 failure mode occurred.
	ErrorKind = ferr.ErrorKind
	// ValidationError is the structured error every validation failure
	// in this package returns.
	ValidationError = ferr.ValidationError
)

const (
	InvalidAnnotation       = ferr.InvalidAnnotation
	AxisNotFound            = ferr.AxisNotFound
	StageDepthConflict      = ferr.StageDepthConflict
	ParallelTypeConflict    = ferr.ParallelTypeConflict
	SelfMapping             = ferr.SelfMapping
	MissingDoubleBufferLoop = ferr.MissingDoubleBufferLoop
	UnsupportedLoopShape    = ferr.UnsupportedLoopShape
)

func newError(kind ErrorKind, node string, format string, args ...any) *ValidationError {
	return ferr.New(kind, node, format, args...)
}
