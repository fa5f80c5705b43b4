package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPollMock(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"poll", "--mock", "--mock-seed", "7", "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	got := out.String()
	for _, want := range []string{"problems,", "SENSOR", "network", "component:network"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestCheckLoginNeedsZabbix(t *testing.T) {
	rootCmd.SetArgs([]string{"poll", "--mock", "--check-login", "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		pollLogin = false
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "zabbix source") {
		t.Fatalf("err = %v, want zabbix source error", err)
	}
}
