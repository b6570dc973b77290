package remediation

import (
	"os"
	"path/filepath"
	"testing"

	"deadwax/internal/testsupport"
)

func TestDestinationForMapsLibraryRelativePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := New(cfg, nil, nil, nil)

	source := filepath.Join(cfg.Paths.LibraryRoots[0], "Neu!", "Neu! 75")
	want := filepath.Join(cfg.Paths.QuarantineDir, "Neu!", "Neu! 75")
	if got := exec.destinationFor(source); got != want {
		t.Fatalf("destinationFor(%q) = %q, want %q", source, got, want)
	}
}

func TestDestinationForDeepPathKeepsRelativeStructure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := New(cfg, nil, nil, nil)

	source := filepath.Join(cfg.Paths.LibraryRoots[0], "Various", "Box", "Disc 2")
	want := filepath.Join(cfg.Paths.QuarantineDir, "Various", "Box", "Disc 2")
	if got := exec.destinationFor(source); got != want {
		t.Fatalf("destinationFor(%q) = %q, want %q", source, got, want)
	}
}

func TestDestinationForOutsideRootsKeepsParentFolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := New(cfg, nil, nil, nil)

	source := filepath.Join(string(filepath.Separator), "srv", "media", "Low", "Things We Lost")
	want := filepath.Join(cfg.Paths.QuarantineDir, "Low", "Things We Lost")
	if got := exec.destinationFor(source); got != want {
		t.Fatalf("destinationFor(%q) = %q, want %q", source, got, want)
	}
}

func TestNextAvailablePathPrefersOriginal(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "album")
	got, err := nextAvailablePath(want)
	if err != nil {
		t.Fatalf("nextAvailablePath: %v", err)
	}
	if got != want {
		t.Fatalf("nextAvailablePath = %q, want %q", got, want)
	}
}

func TestNextAvailablePathProbesNumberedSuffixes(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "album")
	for _, existing := range []string{path, path + " (2)"} {
		if err := os.MkdirAll(existing, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", existing, err)
		}
	}

	got, err := nextAvailablePath(path)
	if err != nil {
		t.Fatalf("nextAvailablePath: %v", err)
	}
	if want := path + " (3)"; got != want {
		t.Fatalf("nextAvailablePath = %q, want %q", got, want)
	}
}

func TestMoveDirRenamesWithinFilesystem(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src", "album")
	testsupport.WriteFile(t, filepath.Join(src, "01 - One.flac"), 100)
	testsupport.WriteFile(t, filepath.Join(src, "artwork", "cover.jpg"), 50)

	dst := filepath.Join(base, "dst", "album")
	if err := moveDir(src, dst, 150); err != nil {
		t.Fatalf("moveDir: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present after move: %v", err)
	}
	for _, rel := range []string{"01 - One.flac", filepath.Join("artwork", "cover.jpg")} {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Fatalf("destination missing %s: %v", rel, err)
		}
	}
}

func TestCopyTreePreservesContentAndLayout(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	testsupport.WriteFile(t, filepath.Join(src, "a.flac"), 64)
	testsupport.WriteFile(t, filepath.Join(src, "disc 2", "b.flac"), 128)

	dst := filepath.Join(base, "dst")
	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	copies := []struct {
		rel  string
		size int64
	}{
		{"a.flac", 64},
		{filepath.Join("disc 2", "b.flac"), 128},
	}
	for _, c := range copies {
		info, err := os.Stat(filepath.Join(dst, c.rel))
		if err != nil {
			t.Fatalf("stat copied %s: %v", c.rel, err)
		}
		if info.Size() != c.size {
			t.Fatalf("copied %s is %d bytes, want %d", c.rel, info.Size(), c.size)
		}
	}

	srcBytes, err := os.ReadFile(filepath.Join(src, "a.flac"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	dstBytes, err := os.ReadFile(filepath.Join(dst, "a.flac"))
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(srcBytes) != string(dstBytes) {
		t.Fatal("copied bytes differ from source")
	}
}

func TestDirSizeSumsRegularFiles(t *testing.T) {
	base := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(base, "one.flac"), 1000)
	testsupport.WriteFile(t, filepath.Join(base, "sub", "two.flac"), 500)

	if got := dirSize(base); got != 1500 {
		t.Fatalf("dirSize = %d, want 1500", got)
	}
}

func TestDirSizeMissingPathIsZero(t *testing.T) {
	if got := dirSize(filepath.Join(t.TempDir(), "nope")); got != 0 {
		t.Fatalf("dirSize of missing path = %d, want 0", got)
	}
}

func TestFreeSpaceReportsNonZero(t *testing.T) {
	free, err := freeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("freeSpace: %v", err)
	}
	if free == 0 {
		t.Fatal("freeSpace reported zero bytes available on a writable tempdir")
	}
}
