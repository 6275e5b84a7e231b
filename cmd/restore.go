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
	restoreFile string
	restorePath string
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a controller config backup.",
	Long:  `Restore replays a stored backup to the controller. Without --file the newest backup is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		body, _ := json.Marshal(map[string]string{
			"file": restoreFile,
			"path": restorePath,
		})
		httpc := httpClientFor(addr)
		resp, err := httpc.Post(apiURL(addr, "/backups/restore"), "application/json", bytes.NewReader(body))
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
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.PersistentFlags().StringVar(&restoreFile, "file", "", "backup file to restore (default is the newest backup)")
	restoreCmd.PersistentFlags().StringVar(&restorePath, "path", "", "backup directory to pick the newest backup from")
}
