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
package cmd

import (
	"github.com/google/uuid"
	"github.com/kerngen/loopfuse/pkg/lower"
	"github.com/spf13/cobra"
)

// loweringConfigFromFlags builds a lower.LoweringConfig from the root
// command's persistent flags, mirroring go-corset's
// pkg/cmd/util/schema_stacker.go builder-from-flags pattern.
func loweringConfigFromFlags(cmd *cobra.Command) *lower.LoweringConfig {
	cfg := lower.NewLoweringConfig()

	if GetFlag(cmd, "allow-self-mapping") {
		cfg = cfg.WithAllowSelfMapping(true)
	}

	return cfg
}

// correlationID returns the --correlation-id flag value, or a freshly
// generated uuid when the flag was left empty — every doublebuffer.Run
// invocation from the CLI is tagged so multi-loop lowering runs can be
// traced in the log output.
func correlationID(cmd *cobra.Command) string {
	if id := GetString(cmd, "correlation-id"); id != "" {
		return id
	}

	return uuid.NewString()
}
