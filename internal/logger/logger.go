// Copyright 2025 Google LLC
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

// Package logger provides the process-wide logger, gated by a debug flag
// set once at startup from the parsed configuration.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var (
	infoLog  = log.New(os.Stderr, "ftpfuse: ", log.LstdFlags)
	debugLog = log.New(os.Stderr, "ftpfuse(debug): ", log.LstdFlags|log.Lshortfile)

	debugEnabled atomic.Bool
)

// EnableDebug turns on Debugf output. Called once during startup.
func EnableDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

func Infof(format string, v ...interface{}) {
	infoLog.Printf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	infoLog.Printf("ERROR: "+format, v...)
}

// Debugf logs only when EnableDebug(true) has been called.
func Debugf(format string, v ...interface{}) {
	if debugEnabled.Load() {
		debugLog.Output(2, fmt.Sprintf(format, v...))
	}
}
