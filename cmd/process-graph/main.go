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
	"os"

	"github.com/dcondrey/process-pilot"
	"github.com/dcondrey/process-pilot/graph"
	"github.com/dcondrey/process-pilot/manifest"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	detailed  bool
)

func main() {
	root := &cobra.Command{
		Use:   "process-graph <manifest-path>",
		Short: "Render a process manifest's dependency graph to an image",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVar(&format, "format", "png", "output format: png, svg, or pdf")
	root.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the rendered graph into")
	root.Flags().BoolVar(&detailed, "detailed", false, "include per-process detail tooltips (svg only)")

	if err := root.Execute(); err != nil {
		var me *pilot.ManifestError
		if errors.As(err, &me) {
			os.Exit(1)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	m, err := manifest.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	if err := m.Validate(pilot.NewRegistry()); err != nil {
		return err
	}

	var f graph.Format
	switch format {
	case "png":
		f = graph.PNG
	case "svg":
		f = graph.SVG
	case "pdf":
		f = graph.PDF
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	path, err := graph.Render(m, f, outputDir, detailed)
	if err != nil {
		return err
	}
	fmt.Printf("Generated dependency graph: %s\n", path)
	return nil
}
