// This file is part of extalife-agent
//
// Copyright (C) 2024  extalife-agent authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	testButton  string
	testChannel string
	testEvent   string
)

// testButtonCmd represents the test-button command
var testButtonCmd = &cobra.Command{
	Use:   "test-button",
	Short: "Simulate a transmitter button event.",
	Long:  `Simulate a transmitter button event, publishing the synthetic signals to the channel notify topic. Events: triple, double, single, down, up.`,
	Run: func(cmd *cobra.Command, args []string) {
		body, _ := json.Marshal(map[string]string{
			"button":     testButton,
			"channel_id": testChannel,
			"event":      testEvent,
		})
		httpc := httpClientFor(addr)
		resp, err := httpc.Post(apiURL(addr, "/test-button"), "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		defer resp.Body.Close()
		printResponse(resp)
		if resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(testButtonCmd)
	testButtonCmd.PersistentFlags().StringVar(&testButton, "button", "1", "button number")
	testButtonCmd.PersistentFlags().StringVar(&testChannel, "channel", "", "transmitter channel id, e.g. 105-#")
	testButtonCmd.PersistentFlags().StringVar(&testEvent, "event", "single", "button event kind")
	_ = testButtonCmd.MarkPersistentFlagRequired("channel")
}
