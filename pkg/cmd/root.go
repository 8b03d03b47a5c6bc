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

// Package cmd implements loopfuse's command-line surface: a cobra root
// command plus the graph and lower subcommands.
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

// Version is filled when building with make, but *not* when installing via
// "go install".
var Version string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "loopfuse",
	Short: "A double-buffering loop transformation pass for GPU kernel IR.",
	Long:  "loopfuse inserts software-pipelined Prolog/Main/Epilog loop stages around double- and circular-buffered tensor loads in a lowered kernel IR.",
	Run: func(cmd *cobra.Command, args []string) {
		if GetFlag(cmd, "version") {
			fmt.Print("loopfuse ")
			if Version != "" {
				// Built via "make"
				fmt.Printf("%s", Version)
			} else if info, ok := debug.ReadBuildInfo(); ok {
				// Built via "go install"
				fmt.Printf("%s", info.Main.Version)
			} else {
				// Unknown, perhaps "go run"
				fmt.Printf("(unknown version)")
			}
			fmt.Println()

			return
		}

		fmt.Println(cmd.UsageString())
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to the rootCmd.
func Execute() {
	configureLogging()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configureLogging sets logrus's level from the --verbose flag (defaulted
// from the LOOPFUSE_VERBOSE environment variable via xyproto/env).
// Execute calls it once up front, and cobra.OnInitialize calls it again
// once the command line is parsed, before any subcommand runs.
func configureLogging() {
	log.SetLevel(log.InfoLevel)

	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if env.Bool("LOOPFUSE_VERBOSE") || verbose {
		log.SetLevel(log.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(configureLogging)
	rootCmd.Flags().Bool("version", false, "Report version of this executable")
	rootCmd.PersistentFlags().BoolP("verbose", "v", env.Bool("LOOPFUSE_VERBOSE"), "increase logging verbosity")
	rootCmd.PersistentFlags().Bool("allow-self-mapping", env.Bool("LOOPFUSE_ALLOW_SELF_MAPPING"), "tolerate (rather than reject) a detected IterDomain self-mapping")
	rootCmd.PersistentFlags().String("correlation-id", env.Str("LOOPFUSE_RUN_ID"), "correlation id to tag log lines for this run (generated if empty)")
}
