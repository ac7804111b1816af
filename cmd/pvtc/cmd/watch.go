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
	"bufio"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "stream unsolicited position updates until interrupted",
	Run:   runWatchCmd,
}

func init() {
	RootCmd.AddCommand(watchCmd)
}

func runWatchCmd(_ *cobra.Command, _ []string) {
	ConfigureVerbosity()

	conn, err := dial()
	if err != nil {
		log.Fatalf("connecting to %s: %v", rootHostFlag, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("W=1\n")); err != nil {
		log.Fatalf("enabling watcher mode: %v", err)
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Fatalf("reading from %s: %v", rootHostFlag, err)
			}
			return
		}
		fmt.Print(line)
	}
}
