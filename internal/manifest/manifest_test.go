package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/regionstream/internal/core/observability/log"
)

const sceneXML = `<?xml version="1.0" encoding="utf-8"?>
<scene version="2.1.0">
  <!-- campus -->
  <shape type="ply" id="mesh-lib">
    <string name="filename" value="meshes\工程三館.ply"/>
    <boolean name="face_normals" value="true"/>
  </shape>
  <shape type="ply" id="mesh-hall">
    <string name="filename" value="meshes/中正堂.ply"/>
  </shape>
  <shape type="ply" id="mesh-x">
    <string name="filename" value="meshes/未知.ply"/>
  </shape>
  <shape type="ply" id="mesh-ok">
    <string name="filename" value="meshes/24k.ply"/>
    <string name="label" value="工程三館"/>
  </shape>
</scene>
`

var table = Table{Names: []Mapping{
	{From: "工程三館", To: "EngineeringBuilding3"},
	{From: "中正堂", To: "ZhongzhengHall"},
}}

func TestTransliterate(t *testing.T) {
	assert.Equal(t, "meshes/EngineeringBuilding3.ply", table.Transliterate(`meshes\工程三館.ply`))
	assert.Equal(t, "plain.ply", table.Transliterate("plain.ply"))
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names:\n  - {from: 中正堂, to: ZhongzhengHall}\n  - {from: 24k, to: 24k}\n"), 0o644))
	got, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []Mapping{{From: "中正堂", To: "ZhongzhengHall"}, {From: "24k", To: "24k"}}, got.Names)

	require.NoError(t, os.WriteFile(path, []byte("names:\n  - {to: X}\n"), 0o644))
	_, err = LoadTable(path)
	assert.Error(t, err)
}

func TestRewrite(t *testing.T) {
	var out strings.Builder
	report, err := Rewrite(strings.NewReader(sceneXML), &out, table)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, []Change{
		{Old: `meshes\工程三館.ply`, New: "meshes/EngineeringBuilding3.ply"},
		{Old: "meshes/中正堂.ply", New: "meshes/ZhongzhengHall.ply"},
	}, report.Changes)
	assert.Equal(t, []string{"meshes/未知.ply"}, report.NonASCII)

	xml := out.String()
	assert.True(t, strings.HasPrefix(xml, `<?xml version="1.0" encoding="utf-8"?>`))
	assert.Contains(t, xml, `value="meshes/EngineeringBuilding3.ply"`)
	assert.Contains(t, xml, `value="meshes/ZhongzhengHall.ply"`)
	assert.Contains(t, xml, `<!-- campus -->`)
	assert.Contains(t, xml, `name="label" value="工程三館"`, "only filename values are rewritten")
}

func TestRewriteRejectsBrokenXML(t *testing.T) {
	var out strings.Builder
	_, err := Rewrite(strings.NewReader(`<scene><shape></scene>`), &out, table)
	assert.Error(t, err)
}

func TestRunBacksUpOnceAndRenames(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "campus.xml")
	meshDir := filepath.Join(dir, "meshes")
	require.NoError(t, os.WriteFile(manifestPath, []byte(sceneXML), 0o644))
	require.NoError(t, os.MkdirAll(meshDir, 0o755))
	for _, name := range []string{"工程三館.ply", "中正堂.ply", "24k.ply"} {
		require.NoError(t, os.WriteFile(filepath.Join(meshDir, name), []byte("ply"), 0o644))
	}

	core, logs := observer.New(zapcore.DebugLevel)
	report, err := Run(manifestPath, meshDir, table, log.NewWithCore(core))
	require.NoError(t, err)

	assert.Equal(t, manifestPath+".bak", report.Backup)
	backup, err := os.ReadFile(manifestPath + ".bak")
	require.NoError(t, err)
	assert.Equal(t, sceneXML, string(backup))

	assert.Len(t, report.Renamed, 2)
	_, err = os.Stat(filepath.Join(meshDir, "EngineeringBuilding3.ply"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(meshDir, "ZhongzhengHall.ply"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(meshDir, "24k.ply"))
	assert.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Values still hold non-ASCII text; the name table may be missing entries").Len())

	// A second run keeps the first backup and finds nothing left to change.
	report, err = Run(manifestPath, meshDir, table, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Backup)
	assert.Empty(t, report.Changes)
	assert.Empty(t, report.Renamed)
	backup, err = os.ReadFile(manifestPath + ".bak")
	require.NoError(t, err)
	assert.Equal(t, sceneXML, string(backup))
}
