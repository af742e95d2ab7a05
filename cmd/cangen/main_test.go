package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevinKickass/cangen/internal/compiler"
	"github.com/KevinKickass/cangen/internal/report"
	"github.com/fatih/color"
)

func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	chdir(t, dir)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const carSet = `{
	"name": "car",
	"buses": {"hs": {"speed": 500000, "controller": 1}},
	"messages": {
		"0x128": {"bus": "hs", "signals": {"door": {"generic_name": "door_status", "bit_position": 0, "bit_size": 1}}}
	}
}`

func TestGenerateToStdout(t *testing.T) {
	workspace(t, map[string]string{"car.json": carSet})

	out, err := run(t, "generate", "-m", "car")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "door_status") {
		t.Errorf("stdout is missing the signal table:\n%s", out)
	}
}

func TestGenerateToFile(t *testing.T) {
	dir := workspace(t, map[string]string{"car.json": carSet})
	target := filepath.Join(dir, "signals.cpp")

	if _, err := run(t, "generate", "-m", "car", "-o", target); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "0x128") {
		t.Error("output file is missing the message")
	}
}

func TestGenerateRequiresInput(t *testing.T) {
	workspace(t, nil)

	if _, err := run(t, "generate"); err == nil {
		t.Error("generate without -m or --super-set succeeded")
	}
}

func TestCheckInvalid(t *testing.T) {
	workspace(t, map[string]string{
		"car.json": `{"name": "car", "buses": {"hs": {"controller": 1}}}`,
	})
	color.NoColor = true

	out, err := run(t, "check", "-m", "car")
	if !errors.Is(err, compiler.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if !strings.Contains(out, "error BUS_001") || !strings.Contains(out, "FAILED") {
		t.Errorf("report:\n%s", out)
	}
}

func TestDumpJSON(t *testing.T) {
	workspace(t, map[string]string{"car.json": carSet})

	out, err := run(t, "dump", "-m", "car", "--format", "json")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, `"generic_name": "door_status"`) {
		t.Errorf("dump:\n%s", out)
	}
}

func TestDumpRejectsFormat(t *testing.T) {
	workspace(t, map[string]string{"car.json": carSet})

	if _, err := run(t, "dump", "-m", "car", "--format", "xml"); err == nil {
		t.Error("dump --format xml succeeded")
	}
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	rep := report.New()
	rep.Warnf(report.CodeSignalIncomplete, "car", "/messages/0x10/signals/x", "x is incomplete")
	rep.Finalize()

	var buf bytes.Buffer
	printReport(&buf, rep)

	want := "warning SIGNAL_001 x is incomplete [car/messages/0x10/signals/x]\nOK 1 warning(s)\n"
	if buf.String() != want {
		t.Errorf("printReport =\n%q\nwant\n%q", buf.String(), want)
	}
}
