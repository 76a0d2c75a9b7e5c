package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoutesNoRules(t *testing.T) {
	for _, text := range []string{"", "\n\n   \n", "# nothing here\n  # indented comment"} {
		rt, err := ParseRoutes(text)
		require.NoError(t, err)
		assert.Equal(t, 0, rt.Len())

		for _, path := range []string{"/", "/index.html", ""} {
			_, ok := rt.Match(path)
			assert.False(t, ok, "path %q matched in empty table", path)
		}
	}
}

func TestParseRoutes(t *testing.T) {
	rt, err := ParseRoutes(`
"^/$" : open "static/index.html"
  "^/about$"   :   OPEN   "static/about.html"
"^/run$" : exec "ls -la"
`)
	require.NoError(t, err)
	require.Equal(t, 3, rt.Len())

	routes := rt.Routes()
	assert.Equal(t, "^/$", routes[0].Pattern.String())
	assert.Equal(t, Open{Path: "static/index.html"}, routes[0].Action)
	assert.Equal(t, Open{Path: "static/about.html"}, routes[1].Action)
	assert.Equal(t, Unhandled{Verb: "exec", Arg: "ls -la"}, routes[2].Action)
}

func TestParseRoutesCRLF(t *testing.T) {
	rt, err := ParseRoutes("\"^/a$\" : open \"a.txt\"\r\n\"^/b$\" : open \"b.txt\"\r\n")
	require.NoError(t, err)
	require.Equal(t, 2, rt.Len())

	r, ok := rt.Match("/b")
	require.True(t, ok)
	assert.Equal(t, Open{Path: "b.txt"}, r.Action)
}

func TestMatchFirstDeclaredWins(t *testing.T) {
	rt, err := ParseRoutes(`
"/docs" : open "first.txt"
"^/docs/index\.html$" : open "second.txt"
`)
	require.NoError(t, err)

	r, ok := rt.Match("/docs/index.html")
	require.True(t, ok)
	assert.Equal(t, Open{Path: "first.txt"}, r.Action)

	_, ok = rt.Match("/other")
	assert.False(t, ok)
}

func TestParseRoutesBadPattern(t *testing.T) {
	_, err := ParseRoutes(`"^/ok$" : open "ok.txt"
"^/broken([$" : open "x.txt"`)
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.Line)
	assert.Contains(t, err.Error(), "bad route pattern")
}

func TestParseRoutesOnlyProse(t *testing.T) {
	rt, err := ParseRoutes("routes for my site\nnotes: todo\n^/no-quotes$ : open ok.txt\n")
	require.NoError(t, err)
	assert.Equal(t, 0, rt.Len())

	for _, path := range []string{"/", "/no-quotes", "routes for my site"} {
		_, ok := rt.Match(path)
		assert.False(t, ok, "path %q matched", path)
	}
}

func TestParseRoutesKeepsRulesAroundProse(t *testing.T) {
	rt, err := ParseRoutes(`"^/a$" : open "a.txt"
notes: todo
"^/b$" : open "b.txt"`)
	require.NoError(t, err)
	require.Equal(t, 2, rt.Len())

	r, ok := rt.Match("/a")
	require.True(t, ok)
	assert.Equal(t, Open{Path: "a.txt"}, r.Action)

	r, ok = rt.Match("/b")
	require.True(t, ok)
	assert.Equal(t, Open{Path: "b.txt"}, r.Action)
}

func TestLoadRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.txt")
	require.NoError(t, os.WriteFile(path, []byte(`"^/$" : open "index.html"`+"\n"), 0o644))

	rt, err := LoadRoutes(path)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Len())

	_, err = LoadRoutes(filepath.Join(dir, "missing.txt"))
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 0, cerr.Line)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRouteString(t *testing.T) {
	rt, err := ParseRoutes(`"^/$" : open "index.html"
"^/x$" : proxy "upstream"`)
	require.NoError(t, err)

	routes := rt.Routes()
	assert.Equal(t, `"^/$" : open "index.html"`, routes[0].String())
	assert.Equal(t, `"^/x$" : proxy "upstream" (unhandled)`, routes[1].String())
}
