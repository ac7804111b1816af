/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	sysd "github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"

	"github.com/facebook/pvtd/config"
	"github.com/facebook/pvtd/daemon"
)

func main() {
	var (
		configFlag   string
		pidFileFlag  string
		logLevelFlag string
		pprofFlag    string
	)

	flag.StringVar(&configFlag, "config", "/etc/pvtd.yaml", "path to the device/profile config")
	flag.StringVar(&pidFileFlag, "pidfile", "/var/run/pvtd.pid", "pid file location")
	flag.StringVar(&logLevelFlag, "loglevel", "info", "log level: debug, info, warning, error")
	flag.StringVar(&pprofFlag, "pprofaddr", "", "host:port for the pprof profiler to bind, disabled if empty")
	flag.Parse()

	switch logLevelFlag {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", logLevelFlag)
	}

	cfg, err := config.ReadConfig(configFlag)
	if err != nil {
		log.Fatalf("reading config %s: %v", configFlag, err)
	}

	if pprofFlag != "" {
		log.Warningf("starting profiler on %s", pprofFlag)
		go func() {
			log.Println(http.ListenAndServe(pprofFlag, nil))
		}()
	}

	if err := config.CreatePidFile(pidFileFlag); err != nil {
		log.Fatalf("creating pid file %s: %v", pidFileFlag, err)
	}
	defer func() {
		if err := config.DeletePidFile(pidFileFlag); err != nil {
			log.Warningf("removing pid file %s: %v", pidFileFlag, err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := daemon.New(cfg)

	if supported, err := sysd.SdNotify(false, sysd.SdNotifyReady); err != nil {
		log.Warningf("sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("sd_notify not supported")
	}

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("daemon exited: %v", err)
	}
}
