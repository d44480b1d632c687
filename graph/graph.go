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

// Package graph renders a manifest's dependency graph to an image by
// generating DOT source and shelling out to the Graphviz "dot" binary.
// It reads only the manifest's declared processes and dependencies.
package graph

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dcondrey/process-pilot"
)

var readyColors = map[string]string{
	"tcp":  "lightblue",
	"file": "lightgreen",
	"pipe": "lightyellow",
}

// Format is a supported output format for dot's -T flag.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
	PDF Format = "pdf"
)

// Render writes a DOT-rendered image of manifest's dependency graph to
// outputDir/process_dependencies.<format> and returns that path.
// detailed is honored only for SVG output, where it adds a tooltip
// with each process's path, ready strategy, and timeout.
func Render(manifest *pilot.ProcessManifest, format Format, outputDir string, detailed bool) (string, error) {
	if outputDir == "" {
		outputDir = "."
	}
	dot := buildDOT(manifest, detailed && format == SVG)

	outputPath := filepath.Join(outputDir, fmt.Sprintf("process_dependencies.%s", format))
	cmd := exec.Command("dot", "-T"+string(format), "-o", outputPath)
	cmd.Stdin = strings.NewReader(dot)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("dot failed: %w: %s", err, out)
	}
	return outputPath, nil
}

func buildDOT(manifest *pilot.ProcessManifest, detailed bool) string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	b.WriteString("  rankdir=LR;\n")

	for _, p := range manifest.Processes {
		fillColor := readyColors[p.ReadyStrategy]
		if fillColor == "" {
			fillColor = "white"
		}
		attrs := fmt.Sprintf(`style=filled, fillcolor=%q`, fillColor)
		if detailed {
			tooltip := fmt.Sprintf("Path: %s\\nReady Strategy: %s\\nTimeout: %gs", p.Path, p.ReadyStrategy, p.ReadyTimeoutSec)
			attrs += fmt.Sprintf(`, tooltip=%q`, tooltip)
		}
		fmt.Fprintf(&b, "  %q [%s];\n", p.Name, attrs)
	}

	for _, p := range manifest.Processes {
		for _, dep := range p.Dependencies {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, p.Name)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
