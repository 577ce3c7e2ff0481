package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	path := filepath.Join(dir, "soundbench.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimal = `
version: "1"
build:
  command: ["go", "build", "-buildmode=plugin", "-o", "module.so", "./src"]
  artifact: module.so
watch:
  paths: [src]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	require.Equal(t, 2*time.Minute, cfg.Build.Timeout.Std())
	require.Equal(t, 30*time.Second, cfg.Build.ExtractTimeout.Std())
	require.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce.Std())
	require.Equal(t, []string{".go"}, cfg.Watch.Extensions)
	require.Equal(t, "127.0.0.1:8765", cfg.Server.Listen)
	require.Equal(t, "null", cfg.Audio.Device)
	require.Equal(t, 48000.0, cfg.Audio.SampleRate)
	require.Equal(t, 512, cfg.Audio.BufferFrames)
	require.Equal(t, 2, cfg.Audio.Channels)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, minimal)
	base := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(base, "src"), cfg.Watch.Paths[0])
	require.Equal(t, filepath.Join(base, ".soundbench"), cfg.CacheDir)
	require.Equal(t, filepath.Join(base, "module.so"), cfg.Build.Artifact)
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: "1"
build:
  command: [make]
  artifact: module.so
  timeout: 45s
watch:
  paths: [src]
  debounce: 150ms
`))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.Build.Timeout.Std())
	require.Equal(t, 150*time.Millisecond, cfg.Watch.Debounce.Std())
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"unsupported version": `
version: "0"
build: {command: [make], artifact: a.so}
watch: {paths: [src]}
`,
		"build.command is required": `
version: "1"
build: {artifact: a.so}
watch: {paths: [src]}
`,
		"build.artifact is required": `
version: "1"
build: {command: [make]}
watch: {paths: [src]}
`,
		"watch.paths requires at least one directory": `
version: "1"
build: {command: [make], artifact: a.so}
`,
		"audio.device must be": `
version: "1"
build: {command: [make], artifact: a.so}
watch: {paths: [src]}
audio: {enabled: true, device: jack}
`,
		"audio.wav_path is required": `
version: "1"
build: {command: [make], artifact: a.so}
watch: {paths: [src]}
audio: {enabled: true, device: wav}
`,
		"must start with a dot": `
version: "1"
build: {command: [make], artifact: a.so}
watch: {paths: [src], extensions: [go]}
`,
	}

	for want, body := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			require.Contains(t, err.Error(), want)
		})
	}
}

func TestInvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: "1"
build:
  command: [make]
  artifact: a.so
  timeout: banana
watch: {paths: [src]}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid duration")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}
