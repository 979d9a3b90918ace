package tree

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/lunge-worker/internal/params"
	"github.com/wesleyorama2/lunge-worker/internal/plugin"
)

type initLines struct {
	mu    sync.Mutex
	lines []string
}

func (l *initLines) Info(msg string)  { l.add("INFO " + msg) }
func (l *initLines) Error(msg string) { l.add("ERROR " + msg) }

func (l *initLines) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func newEnv(t *testing.T) (*plugin.Env, *initLines) {
	t.Helper()
	lines := &initLines{}
	env := &plugin.Env{
		TaskID:       1,
		VirtualUsers: 1,
		FilePath:     t.TempDir(),
		Store:        params.NewStore(),
		Shared:       plugin.NewShared(),
		InitLog:      lines,
	}
	t.Cleanup(func() { _ = env.Store.Close() })
	return env, lines
}

const sampleDocument = `[
	{"id": 1, "originalId": 2, "title": "case", "desc": "", "status": true, "value": "", "children": [
		{"id": 2, "originalId": 11, "title": "get home", "desc": "", "status": true,
		 "value": "{\"method\":\"GET\",\"url\":\"http://localhost/${x}\",\"headers\":[],\"body_type\":2,\"raw_body\":\"\",\"connectTimeout\":0}",
		 "children": [
			{"id": 3, "originalId": 13, "title": "is ok", "desc": "", "status": true,
			 "value": "{\"url_check\":[],\"header_check\":[],\"body_content_check\":[],\"body_json_check\":[],\"code_check\":[[\"text\",1,true,\"200\"]]}"}
		]},
		{"id": 4, "originalId": 5, "title": "vars", "desc": "", "status": true, "value": "{\"vars\":[[\"x\",\"5\"]]}"},
		{"id": 5, "originalId": 8, "title": "pause", "desc": "", "status": false, "value": "not json"}
	]}
]`

func TestParseDocument(t *testing.T) {
	root, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, int64(1), root.ID)
	assert.Equal(t, plugin.TypeTestCase, root.TypeID)
	require.Len(t, root.Children, 3)
	assert.False(t, root.Children[2].Enabled)
	assert.Equal(t, "is ok", root.Children[0].Children[0].Title)
}

func TestParseDocument_Errors(t *testing.T) {
	_, err := ParseDocument([]byte(`[]`))
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`{"id": 1}`))
	assert.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocumentName), []byte(sampleDocument), 0o644))

	root, err := LoadDocument(dir)
	require.NoError(t, err)
	assert.Equal(t, "case", root.Title)

	_, err = LoadDocument(t.TempDir())
	assert.Error(t, err)
}

func TestBuild_ClassifiesAndSkipsDisabled(t *testing.T) {
	root, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	env, lines := newEnv(t)

	p, res := Build(root, env, 1)
	require.True(t, res.OK, res.Failures)
	assert.Equal(t, 4, res.Nodes)
	assert.Empty(t, lines.lines, "virtual user builds are silent")

	c := p.Core().Children()
	require.Len(t, c.Common, 1)
	require.Len(t, c.Configuration, 1)
	assert.Equal(t, "get home", c.Common[0].Core().Node().Title)
	assert.Equal(t, "vars", c.Configuration[0].Core().Node().Title)
	assert.Equal(t, 1, c.Common[0].Core().VU())

	req := c.Common[0].Core().Children()
	require.Len(t, req.Assertion, 1)
	assert.Same(t, c.Common[0], req.Assertion[0].Core().Parent())
}

func TestBuild_TemplateWritesInitLog(t *testing.T) {
	root, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	env, lines := newEnv(t)

	_, res := Build(root, env, 0)
	require.True(t, res.OK)

	want := []string{
		"INFO building plugin tree",
		"INFO plugin 'case' initialization result: succeeded",
		"INFO plugin 'get home' initialization result: succeeded",
		"INFO plugin 'is ok' initialization result: succeeded",
		"INFO plugin 'vars' initialization result: succeeded",
		"INFO plugin tree built",
	}
	if diff := cmp.Diff(want, lines.lines); diff != "" {
		t.Errorf("init log mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ReportsEveryFailure(t *testing.T) {
	root := &plugin.Node{ID: 1, TypeID: plugin.TypeTestCase, Title: "case", Enabled: true, Children: []*plugin.Node{
		{ID: 2, TypeID: 99, Title: "mystery", Enabled: true},
		{ID: 3, TypeID: plugin.TypeConstantTimer, Title: "bad timer", Enabled: true, Value: `{"time": -5}`},
		{ID: 4, TypeID: plugin.TypeConstantTimer, Title: "good timer", Enabled: true, Value: `{"time": 5}`},
	}}
	env, lines := newEnv(t)

	p, res := Build(root, env, 0)
	require.NotNil(t, p)
	assert.False(t, res.OK)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0], `"mystery" (id 2)`)
	assert.Contains(t, res.Failures[0], plugin.ErrUnknownType.Error())
	assert.Contains(t, res.Failures[1], `"bad timer" (id 3)`)
	assert.Error(t, res.Err())

	// the valid sibling is still built
	require.Len(t, p.Core().Children().Common, 2)

	var errorLines int
	for _, l := range lines.lines {
		if strings.HasPrefix(l, "ERROR ") {
			errorLines++
		}
	}
	assert.Equal(t, 2, errorLines)
}

func TestBuild_DisabledRoot(t *testing.T) {
	env, _ := newEnv(t)
	p, res := Build(&plugin.Node{ID: 1, TypeID: plugin.TypeTestCase, Enabled: false}, env, 1)
	assert.Nil(t, p)
	assert.False(t, res.OK)
}

func TestBuild_TreesAreIndependent(t *testing.T) {
	root, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	env, _ := newEnv(t)

	a, res := Build(root, env, 1)
	require.True(t, res.OK)
	b, res := Build(root, env, 2)
	require.True(t, res.OK)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Core().Children().Common[0], b.Core().Children().Common[0])
	assert.Same(t, a.Core().Node(), b.Core().Node())
}

func TestBuilder_CustomRegistry(t *testing.T) {
	reg := plugin.NewRegistry()
	env, _ := newEnv(t)

	_, res := NewBuilder(reg).Build(&plugin.Node{ID: 1, TypeID: plugin.TypeTestCase, Enabled: true}, env, 1)
	assert.False(t, res.OK)
	assert.NoError(t, Result{OK: true}.Err())
}
