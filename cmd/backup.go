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
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/extalife/extalife-agent/pkg/backup"
)

var (
	listBackupHeaders = []string{"Backup", "Created At", "Files"}

	backupSchedule  string
	backupRetention int
	backupPath      string
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Perform controller config backup tasks.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			logger.Error(err.Error())
		}
	},
}

// backupListCmd represents the backup list command
var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored controller backups.",
	Run: func(cmd *cobra.Command, args []string) {
		httpc := httpClientFor(addr)
		url := apiURL(addr, "/backups")
		if backupPath != "" {
			url += "?path=" + backupPath
		}
		resp, err := httpc.Get(url)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		defer resp.Body.Close()
		var entries []backup.Entry
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader(listBackupHeaders)
		for _, e := range entries {
			table.Append([]string{e.Base, e.Timestamp.Format(time.RFC3339), strings.Join(e.Files, "\n")})
		}
		table.Render()
	},
}

// backupRunCmd represents the backup run command
var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a controller config backup immediately.",
	Run: func(cmd *cobra.Command, args []string) {
		body, _ := json.Marshal(map[string]interface{}{
			"schedule":  backupSchedule,
			"retention": backupRetention,
			"path":      backupPath,
		})
		httpc := httpClientFor(addr)
		resp, err := httpc.Post(apiURL(addr, "/backups"), "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintln(os.Stderr, "backup failed:")
			printResponse(resp)
			os.Exit(1)
		}
		var entry backup.Entry
		if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		for _, f := range entry.Files {
			fmt.Println(f)
		}
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.PersistentFlags().StringVar(&backupPath, "path", "", "backup directory (empty or relative paths resolve against the agent config dir)")
	backupRunCmd.PersistentFlags().StringVar(&backupSchedule, "schedule", "", "schedule label: daily, weekly, monthly or yearly")
	backupRunCmd.PersistentFlags().IntVar(&backupRetention, "retention", 0, "number of backups to keep per schedule, 0 disables rotation")
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRunCmd)
}
