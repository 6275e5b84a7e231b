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
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/extalife/extalife-agent/pkg/extalife"
)

var listChannelHeaders = []string{"Channel", "Alias", "State"}

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh controller state and list all channels.",
	Run: func(cmd *cobra.Command, args []string) {
		httpc := httpClientFor(addr)
		resp, err := httpc.Post(apiURL(addr, "/controller/refresh"), "application/json", nil)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			printResponse(resp)
			os.Exit(1)
		}
		var channels []extalife.Channel
		if err := json.NewDecoder(resp.Body).Decode(&channels); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader(listChannelHeaders)
		for _, ch := range channels {
			alias, _ := ch.Data["alias"].(string)
			state := ""
			if v, ok := ch.Data["power"]; ok {
				state = fmt.Sprint(v)
			}
			table.Append([]string{ch.ID, alias, state})
		}
		table.Render()
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
