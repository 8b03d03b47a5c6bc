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

	"github.com/kerngen/loopfuse/pkg/doublebuffer"
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/kerngen/loopfuse/pkg/lower"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// lowerCmd runs the double-buffer pass over the fixture loop nest and
// prints the rewritten stage list plus the allocation/stage-depth table
// doublebuffer.Info recorded along the way.
var lowerCmd = &cobra.Command{
	Use:   "lower",
	Short: "Run the double-buffer pass over the fixture loop nest and print the rewritten stages",
	Run: func(cmd *cobra.Command, args []string) {
		extent := int64(GetUint(cmd, "extent"))
		depth := GetUint(cmd, "depth")

		fusion, _, tv1 := fixtureFusion(extent, depth)
		loop := fixtureLoop(tv1, extent)

		id := correlationID(cmd)
		log.WithField("run", id).WithFields(log.Fields{"extent": extent, "depth": depth}).Info("lowering fixture fusion")

		ctx, err := lower.NewContext(fusion, loweringConfigFromFlags(cmd))
		if err != nil {
			exitOnError(errors.Wrap(err, "building lowering context"))
			return
		}

		bar := progressbar.Default(1, "lowering loops")

		rewritten, info, err := doublebuffer.Run(ctx, []kir.Node{loop})
		_ = bar.Add(1)

		if err != nil {
			exitOnError(errors.Wrap(err, "double-buffer pass"))
			return
		}

		printHeading(fmt.Sprintf("rewritten stages (run %s)", id))
		fmt.Println(kir.Render(rewritten))

		printHeading("tensors")
		table := newTable("tensor", "axis", "stage depth", "alloc size")

		for _, tv := range info.Tensors() {
			axis, _ := info.DoubleBufferAxis(tv)
			depth, _ := info.StageDepth(axis)
			size, sizeOk := info.OriginalAllocSize(tv)

			sizeConst, constOk := int64(0), false
			if sizeOk {
				sizeConst, constOk = size.AsConst()
			}

			table.Row(tv.Name, axis.String(), fmt.Sprintf("%d", depth), humanBytes(sizeConst, constOk))
		}

		fmt.Println(table.String())
	},
}

func init() {
	rootCmd.AddCommand(lowerCmd)
	lowerCmd.Flags().Uint("extent", 16, "loop extent of the fixture axis")
	lowerCmd.Flags().Uint("depth", 4, "circular-buffer depth of the fixture tensor")
}
