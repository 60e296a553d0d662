package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alitavanaali/MusiComb/pkg/cli"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := cli.Output(sample{"intro", 4}, cli.OutputOptions{Format: cli.FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output json: %v", err)
	}
	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got.Count != 4 {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}

	buf.Reset()
	if err := cli.Output(sample{"intro", 4}, cli.OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "name: intro") {
		t.Fatalf("yaml output = %q", buf.String())
	}

	if err := cli.Output(sample{}, cli.OutputOptions{Format: "xml", Writer: &buf}); err == nil {
		t.Fatal("expected unsupported format error")
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := cli.Output(sample{"verse", 5}, cli.OutputOptions{Format: cli.FormatJSON, File: path}); err != nil {
		t.Fatalf("Output file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), `"verse"`) {
		t.Fatalf("file output %q: %v", data, err)
	}
}
