// Copyright 2026 The disvm Authors
// This file is part of the disvm library.
//
// The disvm library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The disvm library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the disvm library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

type threadReport struct {
	Thread uint64  `yaml:"thread"`
	Steps  uint64  `yaml:"steps"`
	Output []int64 `yaml:"output,flow"`
	Stack  []int64 `yaml:"stack,flow"`
}

// report is the outcome of a run.
type report struct {
	Module      string                 `yaml:"module"`
	Size        uint64                 `yaml:"size"`
	Elapsed     string                 `yaml:"elapsed"`
	Threads     []threadReport         `yaml:"threads"`
	Tools       map[string]interface{} `yaml:"tools,omitempty"`
	Breakpoints map[string]uint64      `yaml:"breakpoints,omitempty"`
	Code        []string               `yaml:"code,omitempty"`
	Error       string                 `yaml:"error,omitempty"`
}

func (r *report) write(w io.Writer, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		r.render(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// render prints the report as tables.
func (r *report) render(w io.Writer) {
	fmt.Fprintf(w, "Module %s (%d instructions) ran in %s\n", r.Module, r.Size, r.Elapsed)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Thread", "Steps", "Output", "Stack"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, t := range r.Threads {
		table.Append([]string{
			strconv.FormatUint(t.Thread, 10),
			strconv.FormatUint(t.Steps, 10),
			formatWords(t.Output),
			formatWords(t.Stack),
		})
	}
	table.Render()

	if len(r.Tools) > 0 {
		table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"Tool", "Result"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetColWidth(100)
		for _, name := range sortedKeys(r.Tools) {
			blob, err := json.Marshal(r.Tools[name])
			if err != nil {
				blob = []byte(err.Error())
			}
			table.Append([]string{name, string(blob)})
		}
		table.Render()
	}
	if len(r.Breakpoints) > 0 {
		table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"Breakpoint", "Hits"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, loc := range sortedKeys(r.Breakpoints) {
			table.Append([]string{loc, strconv.FormatUint(r.Breakpoints[loc], 10)})
		}
		table.Render()
	}
	for _, line := range r.Code {
		fmt.Fprintln(w, line)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
}

func formatWords(words []int64) string {
	s := make([]string, len(words))
	for i, w := range words {
		s[i] = strconv.FormatInt(w, 10)
	}
	return strings.Join(s, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
