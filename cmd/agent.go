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
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/extalife/extalife-agent/pkg/backup"
	"github.com/extalife/extalife-agent/pkg/broker/mqtt"
	"github.com/extalife/extalife-agent/pkg/extalife"
	"github.com/extalife/extalife-agent/pkg/scheduler"
	"github.com/extalife/extalife-agent/pkg/server"
)

var defaultAddr = "unix://" + filepath.Join(os.TempDir(), "extalife-agent.sock")

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agent.",
	Run: func(cmd *cobra.Command, args []string) {
		agentID := viper.GetString("agent_id")

		controller, err := extalife.NewClient(
			extalife.WithHost(viper.GetString("controller_host")),
			extalife.WithPort(viper.GetInt("controller_port")),
			extalife.WithCredentials(viper.GetString("controller_username"), viper.GetString("controller_password")),
			extalife.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("failed to create controller client", zap.Error(err))
		}

		opts := []server.Option{
			server.WithAddr(addr),
			server.WithController(controller),
			server.WithBackupStore(backup.NewStore(configDir(), logger)),
			server.WithLogger(logger),
		}

		if mqttUrl := viper.GetString("broker_url"); mqttUrl != "" {
			b, err := mqtt.NewBroker(
				mqtt.WithURL(mqttUrl),
				mqtt.WithClientID(agentID),
				mqtt.WithCredentials(viper.GetString("broker_username"), viper.GetString("broker_password")),
				mqtt.WithLogger(logger),
			)
			if err != nil {
				logger.Fatal("failed to create broker", zap.Error(err))
			}
			opts = append(opts,
				server.WithBroker(b),
				server.WithSubscribeTopics("agent/default", "agent/"+agentID),
				server.WithPublishTopic("agent/"+agentID+"/status"),
			)
		}

		logger.Debug("Listening address: " + addr)
		s, err := server.New(opts...)
		if err != nil {
			logger.Fatal("failed to create new server", zap.Error(err))
		}

		if schedFile := viper.GetString("schedules_file"); schedFile != "" {
			f, err := os.Open(schedFile)
			if err != nil {
				logger.Fatal("failed to open schedules file", zap.Error(err))
			}
			cfg, err := scheduler.Load(f)
			_ = f.Close()
			if err != nil {
				logger.Fatal("failed to parse schedules file", zap.Error(err))
			}
			sched := scheduler.New(func(job scheduler.Job) error {
				_, err := s.BackupNow(job.Schedule, job.Retention, job.Path)
				return err
			}, logger)
			if err := sched.AddAll(cfg); err != nil {
				logger.Fatal("failed to register schedules", zap.Error(err))
			}
			sched.Start()
			defer sched.Stop()
		}

		if err := s.Run(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "listening address of server.")
}
