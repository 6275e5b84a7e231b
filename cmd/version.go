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
	"os"

	"github.com/spf13/cobra"

	"github.com/extalife/extalife-agent/pkg/agentversion"
	"github.com/extalife/extalife-agent/pkg/extalife"
)

var controllerVersion bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print current version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(agentversion.Version())
		if !controllerVersion {
			return
		}
		httpc := httpClientFor(addr)
		resp, err := httpc.Get(apiURL(addr, "/controller/version"))
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		defer resp.Body.Close()
		var info extalife.VersionInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("Controller firmware: ", info.Installed)
		fmt.Println("Available firmware: ", info.Web)
		fmt.Println("Update available: ", info.UpdateAvailable)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.PersistentFlags().BoolVar(&controllerVersion, "controller", false, "also query the controller firmware version via the agent.")
}
