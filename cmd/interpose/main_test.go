package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(runOptions) bool
	}{
		{"script only", []string{"main.lua"}, false, func(o runOptions) bool {
			return o.script == "main.lua" && o.configPath == "interpose.toml" && !o.watch
		}},
		{"shorthands", []string{"-c", "x.toml", "-w", "main.lua"}, false, func(o runOptions) bool {
			return o.configPath == "x.toml" && o.watch
		}},
		{"log level", []string{"-log-level", "debug", "-dump", "main.lua"}, false, func(o runOptions) bool {
			return o.logLevel == "debug" && o.dump
		}},
		{"bad log level", []string{"-log-level", "loud", "main.lua"}, true, nil},
		{"no script", []string{}, true, nil},
		{"two scripts", []string{"a.lua", "b.lua"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseRunFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRunFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(opts) {
				t.Errorf("parseRunFlags(%v) = %+v", tt.args, opts)
			}
		})
	}
}

func TestRunCommands(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Errorf("run() = %d, want 2", code)
	}
	if code := run([]string{"bogus"}); code != 2 {
		t.Errorf("run(bogus) = %d, want 2", code)
	}
	if code := run([]string{"version"}); code != 0 {
		t.Errorf("run(version) = %d, want 0", code)
	}
}

func TestRunScriptExitCodes(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.lua")
	bad := filepath.Join(dir, "bad.lua")
	if err := os.WriteFile(good, []byte(`x = 1`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte(`error("nope")`), 0o644); err != nil {
		t.Fatal(err)
	}
	missingConfig := filepath.Join(dir, "none.toml")

	if code := run([]string{"run", "-c", missingConfig, "-log-level", "error", good}); code != 0 {
		t.Errorf("run(good) = %d, want 0", code)
	}
	if code := run([]string{"run", "-c", missingConfig, "-log-level", "error", bad}); code != 1 {
		t.Errorf("run(bad) = %d, want 1", code)
	}
}
