package misc

import (
	"os"
	"path/filepath"
	"strings"
)

// FileDumper writes simulation artifacts (run reports, resolved options) to
// disk, creating the parent directory on demand.
type FileDumper struct {
	filepath string
}

func (this *FileDumper) Init(filepath string) {
	this.filepath = filepath
}

func (this *FileDumper) WriteLines(lines []string) {
	dirpath := filepath.Dir(this.filepath)
	if err := os.MkdirAll(dirpath, 0o755); err != nil {
		panic(err)
	}

	contents := strings.Join(lines, "\n")
	if !strings.HasSuffix(contents, "\n") {
		contents += "\n"
	}

	if err := os.WriteFile(this.filepath, []byte(contents), 0o644); err != nil {
		panic(err)
	}
}

func (this *FileDumper) WriteBytes(data []byte) {
	dirpath := filepath.Dir(this.filepath)
	if err := os.MkdirAll(dirpath, 0o755); err != nil {
		panic(err)
	}

	if err := os.WriteFile(this.filepath, data, 0o644); err != nil {
		panic(err)
	}
}
