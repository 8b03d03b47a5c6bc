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
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// terminalWidth reports the current stdout width, falling back to 100
// columns when stdout isn't a terminal (piped output, CI logs).
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}

	return 100
}

// newTable returns an empty lipgloss table with the headers row styled
// and sized to the current terminal width.
func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Width(terminalWidth()).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}

			return lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
		})
}

// humanBytes renders a byte count for debug/CLI output, or "?" when size
// is not a compile-time constant.
func humanBytes(sizeConst int64, ok bool) string {
	if !ok {
		return "?"
	}

	return humanize.Bytes(uint64(sizeConst))
}

func printHeading(title string) {
	fmt.Println(headerStyle.Render(title))
}
