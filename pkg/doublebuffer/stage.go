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
package doublebuffer

// LoopStage names which of the four specialized clones of a
// double-buffered loop body a DoubleBufferLoopCloner is producing.
type LoopStage uint8

const (
	// Prolog fills the first d-1 stages before Main begins.
	Prolog LoopStage = iota
	// Main is the steady-state loop.
	Main
	// Epilog drains the last d-1 stages after Main completes.
	Epilog
	// CircularInitProlog is the single extra iteration used only under
	// predicate peeling to initialise the final stage and back off the
	// gmem pointer.
	CircularInitProlog
)

// String renders the stage's name.
func (s LoopStage) String() string {
	switch s {
	case Prolog:
		return "Prolog"
	case Main:
		return "Main"
	case Epilog:
		return "Epilog"
	case CircularInitProlog:
		return "CircularInitProlog"
	default:
		return "Unknown"
	}
}
