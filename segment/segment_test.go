package segment

import (
	"fmt"
	"os"
	"testing"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("/zeroipc-test-%s-%d", t.Name(), os.Getpid())
}

func TestCreateOpenClose(t *testing.T) {
	name := uniqueName(t)
	seg, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Unlink(name)
	defer seg.Close()

	if !seg.Owner() {
		t.Fatal("creator should be owner")
	}
	if seg.Size() != 4096 {
		t.Fatalf("Size() = %d, want 4096", seg.Size())
	}
	if got := len(seg.Bytes()); uint64(got) != seg.Size() {
		t.Fatalf("Bytes() length = %d, want %d", got, seg.Size())
	}

	peer, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer peer.Close()
	if peer.Owner() {
		t.Fatal("opener should not be owner")
	}
	if peer.Size() != seg.Size() {
		t.Fatalf("peer Size() = %d, want %d", peer.Size(), seg.Size())
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	name := uniqueName(t)
	seg, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Unlink(name)
	defer seg.Close()

	if _, err := Create(name, 4096); err == nil {
		t.Fatal("creating a segment with a taken name should fail")
	}
}

func TestOpenMissingFails(t *testing.T) {
	if _, err := Open("/zeroipc-test-does-not-exist"); err == nil {
		t.Fatal("opening a nonexistent segment should fail")
	}
}

func TestSharedMemoryIsVisibleAcrossHandles(t *testing.T) {
	name := uniqueName(t)
	seg, err := Create(name, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Unlink(name)
	defer seg.Close()

	seg.Bytes()[0] = 0xAB

	peer, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer peer.Close()

	if peer.Bytes()[0] != 0xAB {
		t.Fatal("write through owner's mapping not visible via peer's mapping")
	}
}

func TestValidateNameRejectsMissingSlash(t *testing.T) {
	if _, err := Create("no-leading-slash", 64); err == nil {
		t.Fatal("name without a leading slash should be rejected")
	}
}

func TestUnlinkMissingIsNotAnError(t *testing.T) {
	if err := Unlink("/zeroipc-test-never-created"); err != nil {
		t.Fatalf("Unlink of a missing segment should be a no-op, got: %v", err)
	}
}
