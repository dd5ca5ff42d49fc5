package tracer

import (
	"reflect"
	"testing"
)

func TestSplitNUL(t *testing.T) {
	cases := []struct {
		in   []byte
		want []string
	}{
		{[]byte("cat\x00/etc/hostname\x00"), []string{"cat", "/etc/hostname"}},
		{[]byte(""), nil},
		{[]byte("\x00\x00solo\x00"), []string{"solo"}},
	}

	for _, c := range cases {
		got := splitNUL(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitNUL(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCaptureProcessInfoMissingProcYieldsEmpty(t *testing.T) {
	const bogusPID = 999999999
	parent := 1
	info := captureProcessInfo(bogusPID, &parent)

	if len(info.Argv) != 0 {
		t.Errorf("expected empty argv for unreadable pid, got %v", info.Argv)
	}
	if len(info.Env) != 0 {
		t.Errorf("expected empty env for unreadable pid, got %v", info.Env)
	}
	if info.ParentPID == nil || *info.ParentPID != 1 {
		t.Errorf("expected parent pid preserved even on read failure")
	}
}

func TestCaptureProcessInfoRootHasNilParent(t *testing.T) {
	info := captureProcessInfo(999999999, nil)
	if info.ParentPID != nil {
		t.Errorf("expected root process to have a nil parent pid")
	}
}
