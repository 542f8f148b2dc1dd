// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kimiai/ftpfuse/cfg"
	"github.com/kimiai/ftpfuse/internal/urlparse"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "ftpfuse [flags] ftp_url mountpoint",
	Short: "Mount an FTP server locally as a FUSE filesystem",
	Long: `ftpfuse mounts an FTP server as a local directory, translating
          filesystem operations into FTP control-connection commands and
          caching directory listings, attributes, and file bodies to keep
          the round trips off the common path.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		ftpURL, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}

		return runMount(ftpURL, mountPoint)
	},
}

func populateArgs(args []string) (ftpURL urlparse.FTPURL, mountPoint string, err error) {
	ftpURL, err = urlparse.Parse(args[0])
	if err != nil {
		return
	}

	// Flags override whatever the URL carried.
	if MountConfig.Remote.User != "" {
		ftpURL.User = MountConfig.Remote.User
	}
	if MountConfig.Remote.Password != "" {
		ftpURL.Password = MountConfig.Remote.Password
	}
	if MountConfig.Remote.Port != 0 {
		ftpURL.Port = MountConfig.Remote.Port
	}
	if MountConfig.Remote.TLS {
		ftpURL.TLS = true
	}

	if ftpURL.User == "" {
		err = fmt.Errorf("a username is required: pass --user or embed it in the FTP URL")
		return
	}

	mountPoint, err = filepath.Abs(args[1])
	if err != nil {
		err = fmt.Errorf("resolving mount point: %w", err)
		return
	}

	return
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}

	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}

	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}
