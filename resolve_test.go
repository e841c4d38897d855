package sqfl

import (
	"os"
	"path/filepath"
	"testing"
)

// buildLoopImage hand-assembles a minimal image whose root directory
// contains a single entry, "loop", a symlink pointing at itself. This
// bypasses WriteImage (which refuses to write an oversized target, and
// has no reason to ever write a self-referential symlink) so the resolver's
// loop-depth bound can be exercised directly.
func buildLoopImage() *MemStore {
	mem := NewMemStore(nil)

	// name "loop\0" at offset 32 (right after where the header will sit).
	nameOffset := uint64(HeaderSize)
	name := append([]byte("loop"), 0)

	targetOffset := nameOffset + uint64(len(name))
	target := []byte("loop")

	symInodeOffset := targetOffset + uint64(len(target))
	symInode := Inode{Offset: targetOffset, Size: uint64(len(target)), Type: InodeSymlink}

	direntOffset := symInodeOffset + InodeSize
	dirent := Dirent{Name: nameOffset, Inode: symInodeOffset}

	rootInodeOffset := direntOffset + DirentSize
	rootInode := Inode{ParentInode: rootInodeOffset, Offset: direntOffset, Size: DirentSize, Type: InodeDirectory}

	body := make([]byte, 0, 256)
	body = append(body, name...)
	body = append(body, target...)
	body = append(body, encodeInode(symInode)...)
	body = append(body, encodeDirent(dirent)...)
	body = append(body, encodeInode(rootInode)...)

	mem.Seek(HeaderSize, 0)
	mem.Write(body)

	h := Header{RootInode: rootInodeOffset, VersionMajor: VersionMajor, VersionMinor: VersionMinor}
	mem.Seek(0, 0)
	mem.Write(encodeHeader(h))

	return mem
}

func TestResolveSymlinkLoop(t *testing.T) {
	mem := buildLoopImage()
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, err := img.Resolve("loop"); err != ErrTooManySymlinks {
		t.Fatalf("expected ErrTooManySymlinks, got %v", err)
	}
}

func TestSymlinkTargetTooLong(t *testing.T) {
	mem := NewMemStore(nil)
	img := &Image{store: mem, header: Header{VersionMajor: VersionMajor, VersionMinor: VersionMinor}}
	link := &Symlink{img: img, inode: Inode{Size: LinkTargetMax + 1, Type: InodeSymlink}}
	if _, err := link.Target(); err != ErrSymlinkTooLong {
		t.Fatalf("expected ErrSymlinkTooLong, got %v", err)
	}
}

func TestResolveDotAndEmptyPath(t *testing.T) {
	host := buildHostTree(t)
	mem := NewMemStore(nil)
	if err := WriteImage(mem, host); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	for _, p := range []string{".", "", "/"} {
		item, err := img.Resolve(p)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", p, err)
		}
		if item.Dir == nil {
			t.Fatalf("Resolve(%q) did not return the root directory", p)
		}
	}
}

func TestResolveThroughNonDirectoryComponent(t *testing.T) {
	host := buildHostTree(t)
	mem := NewMemStore(nil)
	if err := WriteImage(mem, host); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, err := img.Resolve("a.txt/nope"); err == nil {
		t.Fatalf("expected an error resolving through a file component")
	}
}

func TestResolveFromSubdirectory(t *testing.T) {
	host := buildHostTree(t)
	mem := NewMemStore(nil)
	if err := WriteImage(mem, host); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	sub, err := img.Resolve("sub")
	if err != nil {
		t.Fatalf("Resolve sub: %v", err)
	}
	if sub.Dir == nil {
		t.Fatalf("sub did not resolve to a directory")
	}

	// Relative from sub, absolute from anywhere, and relative back through
	// the parent must all name the same file.
	var want Inode
	for i, p := range []string{"b.txt", "/sub/b.txt", "../sub/b.txt"} {
		item, err := sub.Dir.Resolve(p)
		if err != nil {
			t.Fatalf("Resolve(%q) from sub: %v", p, err)
		}
		if item.File == nil {
			t.Fatalf("Resolve(%q) from sub did not return a file", p)
		}
		if i == 0 {
			want = item.File.inode
			continue
		}
		if item.File.inode != want {
			t.Fatalf("Resolve(%q) from sub returned a different file", p)
		}
	}

	// An absolute path from the root directory handle must match too.
	root, err := img.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	fromRoot, err := root.Resolve("sub/b.txt")
	if err != nil {
		t.Fatalf("Resolve sub/b.txt from root: %v", err)
	}
	fromSub, err := sub.Dir.Resolve("b.txt")
	if err != nil {
		t.Fatalf("Resolve b.txt from sub: %v", err)
	}
	if fromRoot.File == nil || fromSub.File == nil || fromRoot.File.inode != fromSub.File.inode {
		t.Fatalf("root-relative and sub-relative resolution disagree")
	}
}

func TestResolveNestedSymlinkChain(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "data"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "data", "payload"), []byte("nested"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "links"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// An in-image absolute link, a relative sibling link to it, and a
	// top-level relative link into the subdirectory. Resolving "top" has
	// to expand a relative link whose chain ends in an absolute one while
	// the walk is several directories away from the root.
	if err := os.Symlink("/data/payload", filepath.Join(root, "links", "abs")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if err := os.Symlink("abs", filepath.Join(root, "links", "rel")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if err := os.Symlink("links/rel", filepath.Join(root, "top")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	mem := NewMemStore(nil)
	if err := WriteImage(mem, root); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	for _, p := range []string{"top", "links/rel", "links/abs", "data/payload"} {
		item, err := img.Resolve(p)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", p, err)
		}
		if item.File == nil {
			t.Fatalf("Resolve(%q) did not reach the file", p)
		}
		buf := make([]byte, item.File.Size())
		if _, err := item.File.ReadAt(buf, 0); err != nil {
			t.Fatalf("ReadAt via %q: %v", p, err)
		}
		if string(buf) != "nested" {
			t.Fatalf("Resolve(%q) content = %q, want %q", p, buf, "nested")
		}
	}

	// The same chain must work when the walk starts inside the
	// subdirectory that holds the links.
	links, err := img.Resolve("links")
	if err != nil || links.Dir == nil {
		t.Fatalf("Resolve links: %v", err)
	}
	item, err := links.Dir.Resolve("rel")
	if err != nil {
		t.Fatalf("Resolve rel from links: %v", err)
	}
	if item.File == nil || item.File.Size() != int64(len("nested")) {
		t.Fatalf("rel from links did not reach the file")
	}
}

func TestLookupSharedPrefixNames(t *testing.T) {
	root := t.TempDir()
	for name, content := range map[string]string{
		"ab":   "1",
		"abc":  "22",
		"abce": "333",
		"b":    "4444",
	} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	mem := NewMemStore(nil)
	if err := WriteImage(mem, root); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()
	dir, err := img.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	// A name sharing a prefix with a sibling must find exactly its own
	// entry, identified here by the distinct content lengths.
	for name, size := range map[string]uint64{"ab": 1, "abc": 2, "abce": 3, "b": 4} {
		inode, err := dir.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if inode.Size != size {
			t.Fatalf("Get(%q) found an entry of size %d, want %d", name, inode.Size, size)
		}
	}

	// Prefixes and extensions of stored names must miss, never match a
	// neighbor.
	for _, name := range []string{"a", "abcd", "abcef", "bb", "c"} {
		if _, err := dir.Get(name); err != ErrNotExist {
			t.Fatalf("Get(%q) = %v, want ErrNotExist", name, err)
		}
	}
}

func TestResolveMissingEntry(t *testing.T) {
	host := buildHostTree(t)
	mem := NewMemStore(nil)
	if err := WriteImage(mem, host); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	img, err := Open(mem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, err := img.Resolve("nonexistent"); err != ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
