package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/abergeron/sqfl"
)

const usage = `usage: sqflinfo <command> <image> [arg]

commands:
  ls <image> [path]    list the entries of a directory (default: the root)
  cat <image> <path>   write a file's contents to stdout
  info <image>         print header fields and an entry tally

Encrypted images take a hex-encoded 36-byte key from the SQFL_KEY
environment variable.
`

// commands maps a subcommand name to the number of arguments it takes
// after the image path and the function that runs it against an opened
// image.
var commands = map[string]struct {
	required int
	optional int
	run      func(img *sqfl.Image, args []string) error
}{
	"ls":   {0, 1, runLs},
	"cat":  {1, 0, runCat},
	"info": {0, 0, runInfo},
}

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "help" {
		fmt.Print(usage)
		return
	}
	if len(os.Args) < 3 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name, imgPath, rest := os.Args[1], os.Args[2], os.Args[3:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "sqflinfo: unknown command %q\n%s", name, usage)
		os.Exit(2)
	}
	if len(rest) < cmd.required || len(rest) > cmd.required+cmd.optional {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	img, err := openImage(imgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqflinfo: %s\n", err)
		os.Exit(1)
	}
	defer img.Close()

	if err := cmd.run(img, rest); err != nil {
		fmt.Fprintf(os.Stderr, "sqflinfo: %s: %s\n", name, err)
		os.Exit(1)
	}
}

// openImage opens path, supplying the SQFL_KEY key material when set.
func openImage(path string) (*sqfl.Image, error) {
	hexKey := os.Getenv("SQFL_KEY")
	if hexKey == "" {
		return sqfl.OpenFile(path)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding SQFL_KEY: %w", err)
	}
	return sqfl.OpenFile(path, sqfl.WithKey(key))
}

func runLs(img *sqfl.Image, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	item, err := img.Resolve(path)
	if err != nil {
		return err
	}
	if item.Dir == nil {
		return fmt.Errorf("%s: not a directory", path)
	}
	return item.Dir.Iter(func(name string, it sqfl.FSItem) bool {
		fmt.Println(describe(name, it))
		return true
	})
}

// describe formats one directory entry as a type marker, a size column,
// and the name; symlinks show their target, directories a trailing slash.
func describe(name string, it sqfl.FSItem) string {
	switch {
	case it.Dir != nil:
		return fmt.Sprintf("d        - %s/", name)
	case it.Link != nil:
		target, err := it.Link.Target()
		if err != nil {
			return fmt.Sprintf("l        ? %s", name)
		}
		return fmt.Sprintf("l %8d %s -> %s", len(target), name, target)
	default:
		return fmt.Sprintf("- %8d %s", it.File.Size(), name)
	}
}

func runCat(img *sqfl.Image, args []string) error {
	item, err := img.Resolve(args[0])
	if err != nil {
		return err
	}
	if item.File == nil {
		return fmt.Errorf("%s: not a regular file", args[0])
	}
	_, err = io.Copy(os.Stdout, item.File)
	return err
}

func runInfo(img *sqfl.Image, args []string) error {
	major, minor := img.Version()
	fmt.Printf("version      %d.%d\n", major, minor)
	fmt.Printf("compression  %s\n", img.Compression())
	fmt.Printf("encryption   %s\n", img.Encryption())
	fmt.Printf("root inode   %d\n", img.RootInodeOffset())

	root, err := img.Root()
	if err != nil {
		return err
	}
	var n tally
	if err := n.walk(root); err != nil {
		return err
	}
	fmt.Printf("entries      %d directories, %d files, %d symlinks\n", n.dirs, n.files, n.links)
	return nil
}

type tally struct {
	files, dirs, links int
}

// walk counts every entry reachable from d, descending into
// subdirectories without following symlinks.
func (n *tally) walk(d *sqfl.Directory) error {
	var descendErr error
	err := d.Iter(func(name string, it sqfl.FSItem) bool {
		switch {
		case it.Dir != nil:
			n.dirs++
			if descendErr = n.walk(it.Dir); descendErr != nil {
				return false
			}
		case it.Link != nil:
			n.links++
		default:
			n.files++
		}
		return true
	})
	if err != nil {
		return err
	}
	return descendErr
}
