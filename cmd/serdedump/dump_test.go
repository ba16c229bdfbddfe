package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/application"
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
)

type account struct {
	Owner  string
	Limits map[string]float64
	Parent *account
}

func newApp(t *testing.T, config string) *application.Application {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))
	app := application.New()
	require.NoError(t, app.RunWithArgs([]string{"--config", path}))
	return app
}

func TestDumpPlainFiles(t *testing.T) {
	app := newApp(t, "serde:\n  format: current\n")
	dir := t.TempDir()

	root := &account{Owner: "ann", Limits: map[string]float64{"daily": math.Inf(1)}}
	root.Parent = root
	data, err := serde.Marshal(root)
	require.NoError(t, err)
	first := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(first, data, 0o600))

	data, err = serde.Marshal[any](complex(1, 2))
	require.NoError(t, err)
	second := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(second, data, 0o600))

	var out bytes.Buffer
	require.NoError(t, dump(app, &options{workers: 2, files: []string{first, second}}, &out))

	dec := json.NewDecoder(&out)
	var a, b fileDump
	require.NoError(t, dec.Decode(&a))
	require.NoError(t, dec.Decode(&b))
	assert.Equal(t, first, a.File)
	require.Len(t, a.Values, 1)
	obj := a.Values[0].(map[string]any)
	assert.Equal(t, float64(0), obj["id"])
	fields := obj["fields"].([]any)
	require.Len(t, fields, 3)
	assert.Equal(t, map[string]any{"name": "Owner", "value": "ann"}, fields[0])
	assert.Equal(t, map[string]any{"name": "Parent", "value": map[string]any{"ref": float64(0)}}, fields[2])
	assert.Equal(t, []any{"(1+2i)"}, b.Values)
}

func TestDumpFramed(t *testing.T) {
	app := newApp(t, "codec:\n  compression: zstd\n")
	c, release, err := app.NewCodec()
	require.NoError(t, err)
	defer release()

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, []string{"x", "y"}))
	require.NoError(t, c.Encode(&buf, int32(7)))
	path := filepath.Join(t.TempDir(), "frames.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	var out bytes.Buffer
	require.NoError(t, dump(app, &options{framed: true, workers: 1, files: []string{path}}, &out))
	var got fileDump
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []any{[]any{"x", "y"}, float64(7)}, got.Values)
}

func TestDumpErrors(t *testing.T) {
	app := newApp(t, "serde:\n  format: current\n")
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte{0xff, 0xff, 0xff}, 0o600))

	var out bytes.Buffer
	assert.Error(t, dump(app, &options{workers: 1, files: []string{bad}}, &out))
	assert.Error(t, dump(app, &options{workers: 1, files: []string{filepath.Join(dir, "missing")}}, &out))
	assert.Error(t, dump(app, &options{framed: true, workers: 1, files: []string{bad}}, &out))
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"-framed", "-workers", "0", "a", "b"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.framed)
	assert.Equal(t, 1, opts.workers)
	assert.Equal(t, []string{"a", "b"}, opts.files)

	_, err = parseFlags(nil, &stderr)
	assert.Error(t, err)
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("serde:\n  format: current\n"), 0o600))
	data, err := serde.Marshal("hello")
	require.NoError(t, err)
	input := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(input, data, 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"--config", config, input}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "hello")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"--config", config}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "no input files")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"--config", config, filepath.Join(dir, "missing")}, &stdout, &stderr))
	assert.NotEmpty(t, stderr.String())

	assert.Equal(t, 1, run([]string{"--config", filepath.Join(dir, "absent.yaml")}, &stdout, &stderr))
}
