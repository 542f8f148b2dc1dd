// Copyright 2024 Google LLC
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
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jacobsa/fuse"

	"github.com/kimiai/ftpfuse/clock"
	"github.com/kimiai/ftpfuse/fs"
	"github.com/kimiai/ftpfuse/internal/logger"
	"github.com/kimiai/ftpfuse/internal/perms"
	"github.com/kimiai/ftpfuse/internal/remote"
	"github.com/kimiai/ftpfuse/internal/urlparse"
)

// runMount connects to the FTP server named by ftpURL, builds the
// filesystem server, and mounts it at mountPoint, blocking until it is
// unmounted.
func runMount(ftpURL urlparse.FTPURL, mountPoint string) error {
	logger.EnableDebug(MountConfig.Debug.LogDebug)

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("creating mount point %q: %w", mountPoint, err)
	}

	port := ftpURL.Port
	if port == 0 {
		port = 21
		if ftpURL.TLS {
			port = 990
		}
	}

	client := remote.NewFTPClient(remote.Options{
		Host:                  ftpURL.Host,
		Port:                  port,
		User:                  ftpURL.User,
		Password:              ftpURL.Password,
		TLS:                   ftpURL.TLS,
		TLSInsecureSkipVerify: MountConfig.Remote.TLSInsecureSkipVerify,
	})

	ctx := context.Background()

	logger.Infof("Connecting to %s:%d...", ftpURL.Host, port)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to FTP server: %w", err)
	}

	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		return fmt.Errorf("perms.MyUserAndGroup: %w", err)
	}
	if MountConfig.FileSystem.Uid >= 0 {
		uid = uint32(MountConfig.FileSystem.Uid)
	}
	if MountConfig.FileSystem.Gid >= 0 {
		gid = uint32(MountConfig.FileSystem.Gid)
	}

	serverCfg := &fs.ServerConfig{
		Clock:                    clock.RealClock{},
		Remote:                   client,
		Uid:                      uid,
		Gid:                      gid,
		ExitOnInvariantViolation: MountConfig.Debug.ExitOnInvariantViolation,
	}

	logger.Infof("Creating filesystem server...")
	server, err := fs.NewServer(ctx, serverCfg)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("fs.NewServer: %w", err)
	}

	mountCfg := &fuse.MountConfig{
		FSName:               fmt.Sprintf("ftpfuse@%s:%d", ftpURL.Host, port),
		Subtype:              "ftpfuse",
		VolumeName:           "ftpfuse",
		Options:              mountOptions(),
		EnableParallelDirOps: true,
	}

	logger.Infof("Mounting %q...", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("mount: %w", err)
	}

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}

	return client.Close()
}

func mountOptions() map[string]string {
	opts := make(map[string]string)
	if MountConfig.FileSystem.ReadOnly {
		opts["ro"] = ""
	}
	if MountConfig.FileSystem.AllowOther {
		opts["allow_other"] = ""
	}
	if MountConfig.FileSystem.Umask != 0 {
		opts["umask"] = strconv.FormatInt(int64(MountConfig.FileSystem.Umask), 8)
	}
	return opts
}
