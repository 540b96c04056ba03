package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusSuccess, true},
		{StatusFailed, true},
		{StatusDuplicate, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSummarizeParamsRedaction(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		redacted []string
		kept     []string
	}{
		{
			name:     "plain keys kept",
			params:   `{"text":"hello","tweet_id":"123"}`,
			kept:     []string{"hello", "123"},
			redacted: nil,
		},
		{
			name:     "sensitive keys masked",
			params:   `{"text":"hi","api_key":"sk-12345","password":"hunter2"}`,
			kept:     []string{"hi"},
			redacted: []string{"sk-12345", "hunter2"},
		},
		{
			name:     "substring match is enough",
			params:   `{"my_auth_header":"Bearer xyz","oauth_token":"tok"}`,
			redacted: []string{"Bearer xyz", "tok"},
		},
		{
			name:     "case insensitive",
			params:   `{"API_KEY":"abc"}`,
			redacted: []string{"abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SummarizeParams(json.RawMessage(tt.params))
			for _, v := range tt.kept {
				if !strings.Contains(got, v) {
					t.Errorf("summary %q should contain %q", got, v)
				}
			}
			for _, v := range tt.redacted {
				if strings.Contains(got, v) {
					t.Errorf("summary %q leaked sensitive value %q", got, v)
				}
			}
			if len(tt.redacted) > 0 && !strings.Contains(got, "***REDACTED***") {
				t.Errorf("summary %q missing redaction marker", got)
			}
		})
	}
}

func TestSummarizeParamsTruncation(t *testing.T) {
	long := `{"text":"` + strings.Repeat("a", 2*MaxParamsSummaryLen) + `"}`
	got := SummarizeParams(json.RawMessage(long))
	if len(got) > MaxParamsSummaryLen {
		t.Errorf("summary length %d exceeds %d", len(got), MaxParamsSummaryLen)
	}
}

func TestSummarizeParamsNonObject(t *testing.T) {
	if got := SummarizeParams(json.RawMessage(`[1,2,3]`)); got != "[1,2,3]" {
		t.Errorf("non-object summary = %q", got)
	}
	if got := SummarizeParams(nil); got != "" {
		t.Errorf("empty params summary = %q", got)
	}
}
