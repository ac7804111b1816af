/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "print one position/velocity/time observation and exit",
	Run:   runPollCmd,
}

func init() {
	RootCmd.AddCommand(pollCmd)
}

func runPollCmd(_ *cobra.Command, _ []string) {
	ConfigureVerbosity()
	reply, err := roundTrip("O")
	if err != nil {
		log.Fatalf("querying %s: %v", rootHostFlag, err)
	}
	fmt.Print(reply)
}
