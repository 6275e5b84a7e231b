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
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultPort           = 9000
	defaultControllerPort = 20400
	httpPrefix            = "http://"
	unixPrefix            = "unix://"
	localhost             = "127.0.0.1"
)

var (
	cfgFile string
	addr    string
	debug   bool
	logger  *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "extalife-agent",
	Short: "Exta Life controller agent.",
	Long:  `Exta Life agent is a CLI application to back up, restore and manage a ZAMEL EFC-01 controller.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Println(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if debug {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.extalife-agent.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug (default is false)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listening address of agent server.")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	newLogger := zap.NewProduction
	if debug {
		newLogger = zap.NewDevelopment
	}
	var err error
	if logger, err = newLogger(); err != nil {
		panic(err)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}

		// Search config in home directory with name ".extalife-agent" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".extalife-agent")
	}

	// Set default value for config
	viper.SetDefault("port", defaultPort)
	viper.SetDefault("controller_port", defaultControllerPort)

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logger.Info("Using config file: " + viper.ConfigFileUsed())
	}

	// Set value
	if addr == "" {
		addr = httpPrefix + strings.Join([]string{localhost, viper.GetString("port")}, ":")
	}
}

// configDir returns the agent config directory, the base for resolving
// relative backup paths.
func configDir() string {
	if dir := viper.GetString("config_dir"); dir != "" {
		return dir
	}
	home, err := homedir.Dir()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	return home
}

// httpClientFor returns an HTTP client for the agent address, dialing the
// unix socket when the address uses the unix:// scheme.
func httpClientFor(addr string) *http.Client {
	if !strings.HasPrefix(addr, unixPrefix) {
		return http.DefaultClient
	}
	sock := strings.TrimPrefix(addr, unixPrefix)
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sock)
			},
		},
	}
}

// printResponse dumps an agent API response body to stderr.
func printResponse(resp *http.Response) {
	_, _ = io.Copy(os.Stderr, resp.Body)
	fmt.Fprintln(os.Stderr)
}

// apiURL builds the request URL for an agent API path.
func apiURL(addr, path string) string {
	if strings.HasPrefix(addr, unixPrefix) {
		return "http://unix" + path
	}
	if !strings.HasPrefix(addr, httpPrefix) {
		addr = httpPrefix + addr
	}
	return addr + path
}
