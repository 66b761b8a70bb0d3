package commands

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes reportctl with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	parseRecordOnly = false
	normalizeOutputDir = "."
	generateOutput, generateRawPath = "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestParseCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	require.NoError(t, os.WriteFile(path, []byte("```json\n{\"vin\":\"ABC\",\"brand\":\"BYD\",\"notes\":\"cut"), 0o644))

	out, err := run(t, "", "parse", path)
	require.NoError(t, err)

	var got struct {
		Outcome string          `json:"outcome"`
		Record  json.RawMessage `json:"record"`
		Summary struct {
			VIN string `json:"vin"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "repaired", got.Outcome)
	assert.Equal(t, "ABC", got.Summary.VIN)
	assert.JSONEq(t, `{"vin":"ABC","brand":"BYD"}`, string(got.Record))
}

func TestParseCommandStdinRecordOnly(t *testing.T) {
	out, err := run(t, "no json here", "parse", "-", "--record-only")
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "no json here", rec["rawContent"])
	assert.Equal(t, "Parsing failed", rec["brand"])
}

func TestNormalizeCommand(t *testing.T) {
	t.Setenv("IMAGE_MAX_SIDE", "200")
	t.Setenv("IMAGE_CHUNK_HEIGHT", "100")

	dir := t.TempDir()
	tall := filepath.Join(dir, "tall.png")
	small := filepath.Join(dir, "small.png")
	broken := filepath.Join(dir, "broken.jpg")
	writePNG(t, tall, 50, 350)
	writePNG(t, small, 60, 40)
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))

	outDir := filepath.Join(dir, "out")
	_, err := run(t, "", "normalize", tall, small, broken, "-o", outDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"small.jpg", "tall_part01.jpg", "tall_part02.jpg", "tall_part03.jpg", "tall_part04.jpg"}, names)
}

func TestNormalizeCommandAllInvalid(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))

	_, err := run(t, "", "normalize", broken, "-o", t.TempDir())
	assert.ErrorContains(t, err, "could be decoded")
}

func TestGenerateCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"{\"vin\":\"LGXCE4CB5N0123456\",\"brand\":\"BYD\",\"model\":\"Han\"}"}}]}`))
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", server.URL+"/v1")

	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	writePNG(t, img, 80, 60)
	out := filepath.Join(dir, "report.html")
	raw := filepath.Join(dir, "raw.txt")

	stdout, err := run(t, "", "generate", img, "-o", out, "--save-raw", raw)
	require.NoError(t, err)
	assert.Contains(t, stdout, "LGXCE4CB5N0123456")
	assert.Contains(t, stdout, "strict")

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<!DOCTYPE html>")
	assert.Contains(t, string(html), "BYD Han")

	saved, err := os.ReadFile(raw)
	require.NoError(t, err)
	assert.Contains(t, string(saved), `"vin":"LGXCE4CB5N0123456"`)
}

func TestGenerateCommandRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	img := filepath.Join(t.TempDir(), "page.png")
	writePNG(t, img, 10, 10)

	_, err := run(t, "", "generate", img)
	assert.Error(t, err)
}
