package cmd

import (
	"strings"
	"testing"
)

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"FINISHED_WITH_SUCCESS", "✓"},
		{"FAILED", "✗"},
		{"RUNNING", "⏳"},
		{"QUEUED", "◯"},
		{"READY", "◯"},
		{"SOMETHING_ELSE", "•"},
	}

	for _, tt := range tests {
		if got := statusIcon(tt.status); !strings.Contains(got, tt.want) {
			t.Errorf("statusIcon(%q) = %q, want it to contain %q", tt.status, got, tt.want)
		}
	}
}

func TestColorizeStatusIncludesName(t *testing.T) {
	for _, status := range []string{"QUEUED", "READY", "RUNNING", "FINISHED_WITH_SUCCESS", "FAILED"} {
		if got := colorizeStatus(status); !strings.Contains(got, status) {
			t.Errorf("colorizeStatus(%q) = %q, missing status name", status, got)
		}
	}
}
