package shellres

import (
	"context"
	"runtime"
	"testing"
)

func TestDetectShellsIncludesMissingCandidates(t *testing.T) {
	// Host with nothing installed: every candidate must still be reported,
	// all unavailable.
	withHost(t, nil, nil, nil)

	infos := DetectShells(context.Background())
	if len(infos) != len(platformCandidates()) {
		t.Fatalf("DetectShells() returned %d records, want %d", len(infos), len(platformCandidates()))
	}
	for _, info := range infos {
		if info.Available {
			t.Errorf("shell %q reported available on empty host", info.ID)
		}
		if info.Path == "" {
			t.Errorf("shell %q has empty display path", info.ID)
		}
	}
}

func TestDetectShellsStableOrder(t *testing.T) {
	withHost(t, nil, nil, nil)

	first := DetectShells(context.Background())
	second := DetectShells(context.Background())
	if len(first) != len(second) {
		t.Fatalf("scan lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("scan order unstable at index %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}

	want := platformCandidates()
	for i, info := range first {
		if info.ID != string(want[i].id) {
			t.Fatalf("record %d = %q, want declaration order %q", i, info.ID, want[i].id)
		}
	}
}

func TestDetectShellsMarksInstalled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix candidate table")
	}
	withHost(t, map[string]bool{"/bin/bash": true, "/bin/sh": true}, nil, nil)

	byID := map[string]ShellInfo{}
	for _, info := range DetectShells(context.Background()) {
		byID[info.ID] = info
	}

	if !byID["bash"].Available {
		t.Error("bash should be available")
	}
	if byID["bash"].Path != "/bin/bash" {
		t.Errorf("bash path = %q, want /bin/bash", byID["bash"].Path)
	}
	if byID["fish"].Available {
		t.Error("fish should be unavailable")
	}
}
