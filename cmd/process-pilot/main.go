// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/dcondrey/process-pilot"
	"github.com/dcondrey/process-pilot/httpstatus"
	"github.com/dcondrey/process-pilot/manifest"
	"github.com/dcondrey/process-pilot/plugins/metrics"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	pluginsDir  string
	metricsAddr string
	statusAddr  string
	statusTable bool
)

func main() {
	root := &cobra.Command{
		Use:   "process-pilot <manifest-path>",
		Short: "Supervise a fleet of child processes from a declarative manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVar(&pluginsDir, "plugins", "", "directory of plugin objects to load")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090")
	root.Flags().StringVar(&statusAddr, "status-addr", "", "address to serve the process status API on, e.g. :8321")
	root.Flags().BoolVar(&statusTable, "status-table", false, "print a table of final process states on exit")

	if err := root.Execute(); err != nil {
		var me *pilot.ManifestError
		if errors.As(err, &me) {
			os.Exit(1)
		}
		var sf *pilot.StartupFailure
		if errors.As(err, &sf) {
			os.Exit(2)
		}
		os.Exit(3)
	}
}

func run(cmd *cobra.Command, args []string) error {
	m, err := manifest.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	sv, err := pilot.New(m, pilot.Options{})
	if err != nil {
		return err
	}

	metricsPlugin := metrics.New()
	if err := sv.RegisterPlugins(metricsPlugin); err != nil {
		return err
	}
	if pluginsDir != "" {
		sv.Log().Logger().Printf("external plugin loading from %s is not implemented by this binary", pluginsDir)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				sv.Log().Logger().Printf("metrics server exited: %v", err)
			}
		}()
	}

	if err := sv.Start(); err != nil {
		return err
	}

	if statusAddr != "" {
		go func() {
			if err := http.ListenAndServe(statusAddr, httpstatus.NewHandler(sv)); err != nil {
				sv.Log().Logger().Printf("status server exited: %v", err)
			}
		}()
	}

	err = sv.Wait()

	if statusTable {
		printStatusTable(sv)
	}
	return err
}

func printStatusTable(sv *pilot.Supervisor) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "State", "Restarts")
	for _, v := range sv.Snapshot() {
		table.Append(v.Name(), string(v.State()), fmt.Sprintf("%d", v.RestartCount()))
	}
	table.Render()
}
