package process

import (
	"runtime"
	"strings"
	"testing"
)

func TestBuildCommand_ExplicitArgsSkipShell(t *testing.T) {
	s := Spec{Name: "x", Command: "/opt/venv/bin/python", Args: []string{"-m", "uvicorn", "app:app", "--port", "8000"}}
	cmd := s.BuildCommand()
	want := []string{"/opt/venv/bin/python", "-m", "uvicorn", "app:app", "--port", "8000"}
	if strings.Join(cmd.Args, " ") != strings.Join(want, " ") {
		t.Fatalf("argv = %#v", cmd.Args)
	}
}

func TestBuildCommand_ExplicitShellNoDoubleWrap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
	s := Spec{Name: "x", Command: "sh -c 'echo hi'"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 3 || cmd.Args[1] != "-c" || cmd.Args[2] != "echo hi" {
		t.Fatalf("unexpected argv: %#v", cmd.Args)
	}
}

func TestBuildCommand_MetacharTriggersShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
	s := Spec{Name: "y", Command: "echo hi | wc -c"}
	cmd := s.BuildCommand()
	if len(cmd.Args) < 3 || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell -c wrapping, got argv=%#v", cmd.Args)
	}
}

func TestBuildCommand_PlainSplit(t *testing.T) {
	s := Spec{Name: "z", Command: "  sleep   1 "}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 2 || cmd.Args[1] != "1" {
		t.Fatalf("argv = %#v", cmd.Args)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name      string
		spec      Spec
		expectErr bool
	}{
		{"valid", Spec{Name: "backend", Command: "python"}, false},
		{"missing name", Spec{Command: "python"}, true},
		{"blank command", Spec{Name: "backend", Command: "  "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.expectErr {
				t.Fatalf("Validate() = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}
