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
	"fmt"

	"github.com/kerngen/loopfuse/pkg/idgraph"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// graphCmd builds and dumps the four IterDomainGraphs mapping modes
// (EXACT/ALMOST_EXACT/PERMISSIVE/LOOP) for the fixture fusion.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and print the IterDomain equivalence graphs for the fixture fusion",
	Run: func(cmd *cobra.Command, args []string) {
		extent := int64(GetUint(cmd, "extent"))
		depth := GetUint(cmd, "depth")

		fusion, _, _ := fixtureFusion(extent, depth)

		id := correlationID(cmd)
		log.WithField("run", id).Debug("building IterDomainGraphs")

		cfg := idgraph.NewBuildConfig().WithAllowSelfMapping(GetFlag(cmd, "allow-self-mapping"))

		graphs, err := idgraph.Build(fusion, cfg)
		if err != nil {
			exitOnError(err)
			return
		}

		printHeading(fmt.Sprintf("IterDomainGraphs (run %s)", id))

		for _, mode := range []idgraph.MappingMode{idgraph.Exact, idgraph.AlmostExact, idgraph.Permissive, idgraph.Loop} {
			fmt.Printf("\n%s\n", mode)
			fmt.Println(graphs.IdGraph(mode).String())
		}

		if mapped, msg := graphs.SelfMappingInfo(); mapped {
			fmt.Printf("\nself-mapping detected: %s\n", msg)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Uint("extent", 16, "loop extent of the fixture axis")
	graphCmd.Flags().Uint("depth", 4, "circular-buffer depth of the fixture tensor")
}
