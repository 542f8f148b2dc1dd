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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for a mount, assembled from
// command-line flags, an optional YAML config file, and defaults.
type Config struct {
	Remote RemoteConfig `yaml:"remote"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Debug DebugConfig `yaml:"debug"`

	Foreground bool `yaml:"foreground"`
}

// RemoteConfig carries the pieces needed to reach the FTP server that are
// not already encoded in the mount's positional URL argument.
type RemoteConfig struct {
	User string `yaml:"user"`

	Password string `yaml:"password"`

	Port int `yaml:"port"`

	TLS bool `yaml:"tls"`

	TLSInsecureSkipVerify bool `yaml:"tls-insecure-skip-verify"`
}

type FileSystemConfig struct {
	ReadOnly bool `yaml:"read-only"`

	AllowOther bool `yaml:"allow-other"`

	Uid int `yaml:"uid"`

	Gid int `yaml:"gid"`

	Umask Octal `yaml:"umask"`
}

type DebugConfig struct {
	LogDebug bool `yaml:"log-debug"`

	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("user", "u", "", "Username for the FTP server, overriding any userinfo in the URL.")

	err = viper.BindPFlag("remote.user", flagSet.Lookup("user"))
	if err != nil {
		return err
	}

	flagSet.StringP("password", "p", "", "Password for the FTP server, overriding any userinfo in the URL.")

	err = viper.BindPFlag("remote.password", flagSet.Lookup("password"))
	if err != nil {
		return err
	}

	flagSet.IntP("port", "", 0, "FTP control-connection port. Defaults to 21, or 990 with --tls.")

	err = viper.BindPFlag("remote.port", flagSet.Lookup("port"))
	if err != nil {
		return err
	}

	flagSet.BoolP("tls", "", false, "Use FTPS (explicit TLS) to reach the server.")

	err = viper.BindPFlag("remote.tls", flagSet.Lookup("tls"))
	if err != nil {
		return err
	}

	flagSet.BoolP("tls-insecure-skip-verify", "", false, "Skip certificate verification when --tls is set. For development use only.")

	err = viper.BindPFlag("remote.tls-insecure-skip-verify", flagSet.Lookup("tls-insecure-skip-verify"))
	if err != nil {
		return err
	}

	flagSet.BoolP("read-only", "", false, "Mount the filesystem read-only.")

	err = viper.BindPFlag("file-system.read-only", flagSet.Lookup("read-only"))
	if err != nil {
		return err
	}

	flagSet.BoolP("allow-other", "", false, "Allow other users to access the mount.")

	err = viper.BindPFlag("file-system.allow-other", flagSet.Lookup("allow-other"))
	if err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of all inodes. Defaults to the effective UID of the mounting process.")

	err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid"))
	if err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "GID owner of all inodes. Defaults to the effective GID of the mounting process.")

	err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid"))
	if err != nil {
		return err
	}

	flagSet.StringP("umask", "", "022", "Octal mask applied to remote permission bits for every inode.")

	err = viper.BindPFlag("file-system.umask", flagSet.Lookup("umask"))
	if err != nil {
		return err
	}

	flagSet.BoolP("foreground", "f", false, "Run in the foreground. The process never daemonizes, with or without this flag.")

	err = viper.BindPFlag("foreground", flagSet.Lookup("foreground"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug", "", false, "Enable verbose logging of filesystem operations and remote calls.")

	err = viper.BindPFlag("debug.log-debug", flagSet.Lookup("debug"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug-invariants", "", false, "Exit the process when an internal invariant check fails, instead of panicking.")

	err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug-invariants"))
	if err != nil {
		return err
	}

	return nil
}
