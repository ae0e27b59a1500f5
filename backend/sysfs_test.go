package backend

import (
	"os"
	"path/filepath"
	"testing"
)

func withSysfsRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := sysfsRoot
	sysfsRoot = dir
	t.Cleanup(func() { sysfsRoot = old })
	return dir
}

func TestIfacePathAndClassNetPath(t *testing.T) {
	withSysfsRoot(t)
	if got, want := IfacePath("eth0", "bonding", "mode"), sysfsRoot+"/eth0/bonding/mode"; got != want {
		t.Errorf("IfacePath = %q, want %q", got, want)
	}
	if got, want := ClassNetPath("bonding_masters"), sysfsRoot+"/bonding_masters"; got != want {
		t.Errorf("ClassNetPath = %q, want %q", got, want)
	}
}

func TestHasDir(t *testing.T) {
	root := withSysfsRoot(t)
	if HasDir(filepath.Join(root, "missing")) {
		t.Errorf("HasDir reported true for a path that doesn't exist")
	}
	if err := os.Mkdir(filepath.Join(root, "bonding"), 0755); err != nil {
		t.Fatal(err)
	}
	if !HasDir(filepath.Join(root, "bonding")) {
		t.Errorf("HasDir reported false for an existing directory")
	}
}

func TestReadIntSecondToken(t *testing.T) {
	root := withSysfsRoot(t)
	path := filepath.Join(root, "mode")
	if err := os.WriteFile(path, []byte("active-backup 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInt(path, false); err == nil {
		t.Errorf("ReadInt(second=false) on a non-numeric first token should fail")
	}
	v, err := ReadInt(path, true)
	if err != nil {
		t.Fatalf("ReadInt(second=true): %v", err)
	}
	if v != 1 {
		t.Errorf("ReadInt second token = %d, want 1", v)
	}
}

func TestWriteStringThenReadInt(t *testing.T) {
	root := withSysfsRoot(t)
	path := filepath.Join(root, "min_links")
	if err := WriteString(path, "3"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	v, err := ReadInt(path, false)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if v != 3 {
		t.Errorf("ReadInt after WriteString = %d, want 3", v)
	}
}
