package namespaces_test

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/m-lab/go/rtx"
	"github.com/m-lab/rtnl-proxy/namespaces"
)

func TestListNamed(t *testing.T) {
	d, err := ioutil.TempDir("", "TestListNamed")
	rtx.Must(err, "Could not create temp dir")
	defer os.RemoveAll(d)

	rtx.Must(ioutil.WriteFile(d+"/blue", []byte{}, 0666), "Could not create fake netns file")
	rtx.Must(ioutil.WriteFile(d+"/green", []byte{}, 0666), "Could not create fake netns file")

	names, err := namespaces.ListNamed(d)
	if err != nil {
		t.Fatalf("ListNamed should not have failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Wrong number of named namespaces: got %d, want 2", len(names))
	}
}

func TestListNamedBadDir(t *testing.T) {
	_, err := namespaces.ListNamed("/ThisDirShouldNotExist")
	if err != namespaces.ErrCantReadProc {
		t.Error("Should have failed with ErrCantReadProc")
	}
}
