package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"version", "migrate", "seed-pipelines", "recover-stages", "refresh-engagement"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected command %q to be registered", name)
		}
	}
}

func TestRecoverStagesDescribesUnstagedRepair(t *testing.T) {
	if !strings.Contains(recoverCmd.Short, "no current stage") {
		t.Fatalf("unexpected description %q", recoverCmd.Short)
	}
}

func TestRecoverStagesRejectsBadTenant(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"recover-stages", "--tenant", "not-a-uuid"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid --tenant") {
		t.Fatalf("expected invalid tenant error, got %v", err)
	}
}
