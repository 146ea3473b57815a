package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var (
	ivfMagic = []byte("DKIF")
	oggMagic = []byte("OggS")
)

// CheckFile verifies that path is a readable file whose header matches the
// container its source expects.
func CheckFile(path string, magic []byte) error {
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: file does not exist", path)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%s: is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, magic) {
		return fmt.Errorf("%s: not a %s file", path, magic)
	}
	return nil
}

// Validate checks every file-backed source and reports all problems at once.
func (s Sources) Validate() error {
	var problems []string
	check := func(src Source) {
		var err error
		switch src := src.(type) {
		case IVFFile:
			err = CheckFile(src.Path, ivfMagic)
		case OggFile:
			err = CheckFile(src.Path, oggMagic)
		}
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	check(s.Audio)
	check(s.Camera)
	check(s.Screen)

	if len(problems) > 0 {
		return fmt.Errorf("media validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
