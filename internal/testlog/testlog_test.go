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

package testlog

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/disvm/disvm/log"
)

type mockT struct {
	out bytes.Buffer
}

func (t *mockT) Helper() {}

func (t *mockT) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	// Drop the level and timestamp prefix: "INFO [01-01|00:00:00.000] msg" -> " msg"
	t.out.WriteString(line[strings.Index(line, "]")+1:])
}

func TestSubLogger(t *testing.T) {
	mock := new(mockT)
	l := Logger(mock, log.LvlInfo)
	sub := l.New("tool", 3)

	l.Info("Visible")
	sub.Info("Hide and seek")
	sub.Debug("Filtered")
	l.Info("Also visible")

	lines := strings.Split(strings.TrimRight(mock.out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("have %d lines, want 3: %q", len(lines), mock.out.String())
	}
	if strings.TrimSpace(lines[0]) != "Visible" {
		t.Errorf("line 0: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "tool=3") {
		t.Errorf("line 1 misses sub logger context: %q", lines[1])
	}
	if strings.TrimSpace(lines[2]) != "Also visible" {
		t.Errorf("line 2: %q", lines[2])
	}
}

func TestHandler(t *testing.T) {
	mock := new(mockT)
	l := log.New()
	l.SetHandler(Handler(mock, log.LvlWarn))
	l.Info("quiet")
	l.Warn("loud", "pc", 4)
	if have := mock.out.String(); !strings.Contains(have, "loud") || strings.Contains(have, "quiet") {
		t.Errorf("unexpected output %q", have)
	}
}
