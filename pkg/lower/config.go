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
package lower

// LoweringConfig configures Context construction. Mirrors
// idgraph.BuildConfig's builder-method shape (pkg/cmd/util/schema_stacker.go).
type LoweringConfig struct {
	allowSelfMapping bool
}

// NewLoweringConfig constructs the default configuration: self-mapping
// is a fatal error.
func NewLoweringConfig() *LoweringConfig {
	return &LoweringConfig{}
}

// WithAllowSelfMapping toggles whether a detected self-mapping aborts
// Context construction (false, the default) or is recorded and
// tolerated (true).
func (c *LoweringConfig) WithAllowSelfMapping(allow bool) *LoweringConfig {
	c.allowSelfMapping = allow
	return c
}

// AllowSelfMapping reports the current setting.
func (c *LoweringConfig) AllowSelfMapping() bool {
	if c == nil {
		return false
	}

	return c.allowSelfMapping
}
