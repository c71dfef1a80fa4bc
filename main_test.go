package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/khenidak/crossdc/pkg/config"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp(config.NewConfig())
	app.Writer = &out
	app.ErrWriter = &out

	if err := app.Run(append([]string{"crossdc"}, args...)); err != nil {
		t.Fatalf("failed to run %v: %v (output: %s)", args, err, out.String())
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := runApp(t, "version")
	if !strings.Contains(out, "Version:") || !strings.Contains(out, "BuildTime:") {
		t.Fatalf("expected version and build time got %q", out)
	}
}

func TestVerbosityFlag(t *testing.T) {
	out := runApp(t, "--verbosity", "4", "version")
	if !strings.Contains(out, "Version:") {
		t.Fatalf("expected version output got %q", out)
	}
}

func TestStatusWithNoLease(t *testing.T) {
	out := runApp(t, "status", "--store-type", config.StoreTypeMemory, "--dc", "test-dc", "--local-ip", "127.0.0.1")
	if !strings.Contains(out, "State: absent") {
		t.Fatalf("expected absent lease state got %q", out)
	}
	if !strings.Contains(out, "ThisDcIsLeader: false") {
		t.Fatalf("expected this dc not to lead got %q", out)
	}
}

func TestStatusRequiresDc(t *testing.T) {
	app := newApp(config.NewConfig())
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	if err := app.Run([]string{"crossdc", "status", "--store-type", config.StoreTypeMemory}); err == nil {
		t.Fatalf("expected status without a dc to fail")
	}
}
