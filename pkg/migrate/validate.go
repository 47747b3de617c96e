package migrate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir runs ValidateFS over a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("migrate: dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file in the root of fsys: the name carries a
// unique 14 digit version, an Up section precedes the Down section, and
// StatementBegin/End blocks are balanced.
func ValidateFS(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("migrate: list: %w", err)
	}
	if len(names) == 0 {
		return errors.New("migrate: no migrations found")
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNameRe.FindStringSubmatch(path.Base(name))
		if m == nil {
			return fmt.Errorf("migrate: %q: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("migrate: version %s used by %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("migrate: read %q: %w", name, err)
		}
		if err := checkAnnotations(body); err != nil {
			return fmt.Errorf("migrate: %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(body []byte) error {
	var up, down, open bool
	sc := bufio.NewScanner(bytes.NewReader(body))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(text, "-- +goose ") {
			continue
		}
		switch strings.TrimPrefix(text, "-- +goose ") {
		case "Up":
			up = true
		case "Down":
			if !up {
				return fmt.Errorf("line %d: Down before Up", line)
			}
			if open {
				return fmt.Errorf("line %d: Down inside an open statement block", line)
			}
			down = true
		case "StatementBegin":
			if open {
				return fmt.Errorf("line %d: nested StatementBegin", line)
			}
			open = true
		case "StatementEnd":
			if !open {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open = false
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	switch {
	case !up:
		return errors.New(`missing "-- +goose Up"`)
	case !down:
		return errors.New(`missing "-- +goose Down"`)
	case open:
		return errors.New("unterminated StatementBegin")
	}
	return nil
}
