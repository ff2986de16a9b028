package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse_Full(t *testing.T) {
	j, err := Parse([]byte(`{"sourceFile":"a.c","stdInFile":"in.txt","compileSteps":["gcc {{sourceFile}}"],"runSteps":["./a.out < {{stdInFile}}"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.SourceFile != "a.c" {
		t.Errorf("SourceFile = %q, want a.c", j.SourceFile)
	}
	if j.StdInFile != "in.txt" {
		t.Errorf("StdInFile = %q, want in.txt", j.StdInFile)
	}
	if len(j.CompileSteps) != 1 || len(j.RunSteps) != 1 {
		t.Errorf("steps = %v / %v, want one of each", j.CompileSteps, j.RunSteps)
	}
	if !j.Compiled() {
		t.Error("Compiled() = false, want true")
	}
}

func TestParse_NullCompileSteps(t *testing.T) {
	j, err := Parse([]byte(`{"sourceFile":"a.py","stdInFile":"in","compileSteps":null,"runSteps":["python {{sourceFile}}"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Compiled() {
		t.Error("Compiled() = true, want false")
	}
	if got := j.CompileCommands(); len(got) != 0 {
		t.Errorf("CompileCommands() = %v, want empty", got)
	}
}

func TestParse_AbsentCompileSteps(t *testing.T) {
	j, err := Parse([]byte(`{"sourceFile":"a.sh","stdInFile":"","runSteps":["true"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Compiled() {
		t.Error("Compiled() = true, want false")
	}
}

func TestParse_MissingFileNames(t *testing.T) {
	for name, in := range map[string]string{
		"absent sourceFile": `{"stdInFile":"in","runSteps":["echo [{{sourceFile}}]"]}`,
		"null sourceFile":   `{"sourceFile":null,"stdInFile":"in","runSteps":["true"]}`,
		"absent stdInFile":  `{"sourceFile":"a.c","compileSteps":["cc {{sourceFile}}"],"runSteps":[]}`,
		"null stdInFile":    `{"sourceFile":"a.c","stdInFile":null,"runSteps":["./a.out"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("err = %v, want ErrMissingField", err)
			}
			if errors.Is(err, ErrMissingRunSteps) {
				t.Errorf("err = %v, should not blame runSteps", err)
			}
		})
	}
}

func TestParse_FileNamesOptionalWithoutSteps(t *testing.T) {
	j, err := Parse([]byte(`{"compileSteps":null,"runSteps":[]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.SourceFile != "" || j.StdInFile != "" {
		t.Errorf("file fields = %q/%q, want empty", j.SourceFile, j.StdInFile)
	}
}

func TestParse_KeyCaseSensitive(t *testing.T) {
	for _, in := range []string{
		`{"sourceFile":"a","stdInFile":"b","RUNSTEPS":["echo x"]}`,
		`{"sourceFile":"a","stdInFile":"b","runsteps":["echo x"]}`,
	} {
		_, err := Parse([]byte(in))
		if !errors.Is(err, ErrMissingRunSteps) {
			t.Errorf("Parse(%s) err = %v, want ErrMissingRunSteps", in, err)
		}
	}

	_, err := Parse([]byte(`{"SourceFile":"a","stdInFile":"b","runSteps":["true"]}`))
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("err = %v, want ErrMissingField for differently-cased sourceFile", err)
	}
}

func TestParse_EmptyCompileSteps(t *testing.T) {
	j, err := Parse([]byte(`{"sourceFile":"a","stdInFile":"b","compileSteps":[],"runSteps":["true"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Compiled() {
		t.Error("Compiled() = true, want false")
	}
}

func TestParse_EmptyRunSteps(t *testing.T) {
	j, err := Parse([]byte(`{"runSteps":[]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(j.RunSteps) != 0 {
		t.Errorf("RunSteps = %v, want empty", j.RunSteps)
	}
}

func TestParse_MissingRunSteps(t *testing.T) {
	_, err := Parse([]byte(`{"sourceFile":"a.c","compileSteps":["true"]}`))
	if !errors.Is(err, ErrMissingRunSteps) {
		t.Fatalf("err = %v, want ErrMissingRunSteps", err)
	}
}

func TestParse_NullRunSteps(t *testing.T) {
	_, err := Parse([]byte(`{"runSteps":null}`))
	if !errors.Is(err, ErrMissingRunSteps) {
		t.Fatalf("err = %v, want ErrMissingRunSteps", err)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	for _, in := range []string{``, `{`, `not json`, `{"runSteps":["a"]} trailing`, `["runSteps"]`, `{"runSteps":[1]}`} {
		_, err := Parse([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestExpand_AllOccurrences(t *testing.T) {
	j := &Job{SourceFile: "main.c", StdInFile: "input.txt"}
	got := j.Expand("cc {{sourceFile}} -o out && cat {{stdInFile}} | ./out {{sourceFile}} {{stdInFile}}")
	want := "cc main.c -o out && cat input.txt | ./out main.c input.txt"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestExpand_NoTokens(t *testing.T) {
	j := &Job{SourceFile: "x", StdInFile: "y"}
	if got := j.Expand("echo hi"); got != "echo hi" {
		t.Errorf("Expand = %q, want unchanged", got)
	}
}

func TestExpand_SourceBeforeStdIn(t *testing.T) {
	j := &Job{SourceFile: "{{stdInFile}}.c", StdInFile: "in"}
	if got := j.Expand("cc {{sourceFile}}"); got != "cc in.c" {
		t.Errorf("Expand = %q, want %q", got, "cc in.c")
	}
}

func TestExpand_NotRecursive(t *testing.T) {
	j := &Job{SourceFile: "a", StdInFile: "{{sourceFile}}"}
	if got := j.Expand("cat {{stdInFile}}"); got != "cat {{sourceFile}}" {
		t.Errorf("Expand = %q, want %q", got, "cat {{sourceFile}}")
	}
}

func TestRunCommands_Order(t *testing.T) {
	j := &Job{SourceFile: "s", RunSteps: []string{"one {{sourceFile}}", "two", "three {{sourceFile}}"}}
	got := j.RunCommands()
	want := []string{"one s", "two", "three s"}
	if len(got) != len(want) {
		t.Fatalf("RunCommands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RunCommands[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	data := "sourceFile: solution.go\nstdInFile: input\ncompileSteps:\n  - go build -o /solution {{sourceFile}}\nrunSteps:\n  - /solution < {{stdInFile}}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := j.CompileCommands()[0]; got != "go build -o /solution solution.go" {
		t.Errorf("compile command = %q", got)
	}
	if got := j.RunCommands()[0]; got != "/solution < input" {
		t.Errorf("run command = %q", got)
	}
}

func TestLoad_YAMLMissingRunSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yml")
	if err := os.WriteFile(path, []byte("sourceFile: a.rb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrMissingRunSteps) {
		t.Fatalf("err = %v, want ErrMissingRunSteps", err)
	}
}

func TestLoad_YAMLKeyCaseSensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	data := "sourceFile: a.rb\nstdInFile: in\nRunSteps:\n  - ruby {{sourceFile}}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrMissingRunSteps) {
		t.Fatalf("err = %v, want ErrMissingRunSteps", err)
	}
}

func TestLoad_YAMLMissingFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte("sourceFile: a.rb\nrunSteps:\n  - ruby {{sourceFile}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(`{"sourceFile":"a.js","stdInFile":"","runSteps":["node {{sourceFile}}"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := j.RunCommands()[0]; got != "node a.js" {
		t.Errorf("run command = %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
