package types //nolint:revive // types is a valid package name

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExecutionResult_MarshalEmptyLogs(t *testing.T) {
	data, err := json.Marshal(Succeeded(nil, nil))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"logs":[],"result":null,"error":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFailed_DefaultsMessage(t *testing.T) {
	r := Failed([]string{"a"}, "")
	if r.OK() {
		t.Fatal("expected failure")
	}
	if *r.Error != "unknown error" {
		t.Errorf("got error %q", *r.Error)
	}
	if r.Result != nil {
		t.Error("result must be nil on failure")
	}
}

func TestParseResultLine(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantErr    bool
		wantResult string
		wantLogs   int
	}{
		{
			name:       "last line only",
			output:     `{"logs":["x"],"result":"5","error":null}` + "\n",
			wantResult: "5",
			wantLogs:   1,
		},
		{
			name:       "noise before",
			output:     "hello\n{\"other\":1}\n" + `{"logs":[],"result":"ok","error":null}`,
			wantResult: "ok",
		},
		{
			name:       "last record wins",
			output:     `{"logs":[],"result":"first","error":null}` + "\n" + `{"logs":[],"result":"second","error":null}`,
			wantResult: "second",
		},
		{
			name:       "object without logs is skipped",
			output:     `{"logs":[],"result":"r","error":null}` + "\n" + `{"status":"done"}`,
			wantResult: "r",
		},
		{
			name:    "no record",
			output:  "plain text\n{broken",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResultLine(tt.output)
			if tt.wantErr {
				if !errors.Is(err, ErrNoResultLine) {
					t.Fatalf("expected ErrNoResultLine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResultLine failed: %v", err)
			}
			if got.Result == nil || *got.Result != tt.wantResult {
				t.Errorf("result = %v, want %q", got.Result, tt.wantResult)
			}
			if len(got.Logs) != tt.wantLogs {
				t.Errorf("logs = %v, want %d entries", got.Logs, tt.wantLogs)
			}
		})
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"js", LanguageJavaScript},
		{"JavaScript", LanguageJavaScript},
		{" ts ", LanguageTypeScript},
		{"py", LanguagePython},
	}
	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		if err != nil {
			t.Fatalf("ParseLanguage(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLanguage("ruby"); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestLanguageForTool(t *testing.T) {
	for _, l := range Languages {
		got, ok := LanguageForTool(l.ToolName())
		if !ok || got != l {
			t.Errorf("LanguageForTool(%q) = %q, %v", l.ToolName(), got, ok)
		}
	}
	if _, ok := LanguageForTool("run_ruby"); ok {
		t.Error("expected unknown tool to miss")
	}
}
