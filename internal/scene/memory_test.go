package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundleYAML = `
collections:
  - name: RegionRoot1
    objects: [Library, Road]
  - name: Props
`

func writeBundle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nycu0.bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bundleYAML), 0o644))
	return path
}

func TestFileBundles(t *testing.T) {
	path := writeBundle(t)

	b, err := FileBundles{}.LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"RegionRoot1", "Props"}, b.Names())

	c, ok := b.Find("RegionRoot1")
	require.True(t, ok)
	assert.Equal(t, []string{"Library", "Road"}, c.Objects)

	_, err = FileBundles{}.LoadBundle(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrBundleNotFound)
}

func TestMemoryLinkErrors(t *testing.T) {
	m := NewMemory(FileBundles{})
	path := writeBundle(t)

	assert.ErrorIs(t, m.Link(filepath.Join(t.TempDir(), "nope.yaml"), "RegionRoot1"), ErrBundleNotFound)
	assert.ErrorIs(t, m.Link(path, "RegionRoot9"), ErrCollectionNotFound)
	_, ok := m.Collection("RegionRoot9")
	assert.False(t, ok)

	require.NoError(t, m.Link(path, "RegionRoot1"))
	require.NoError(t, m.Link(path, "RegionRoot1"))
	c, ok := m.Collection("RegionRoot1")
	require.True(t, ok)
	assert.Equal(t, path, c.Library())
	assert.Equal(t, []string{"RegionRoot1"}, m.CollectionNames())
}

func TestMemoryLinkChecksBundle(t *testing.T) {
	m := NewMemory(StaticBundles{
		"a.yaml": {Collections: []BundleCollection{{Name: "RegionRoot1"}}},
		"b.yaml": {Collections: []BundleCollection{{Name: "RegionRoot1"}}},
	})
	require.NoError(t, m.Link("a.yaml", "RegionRoot1"))

	assert.ErrorIs(t, m.Link("missing.yaml", "RegionRoot1"), ErrBundleNotFound)
	assert.ErrorIs(t, m.Link("b.yaml", "RegionRoot1"), ErrCollectionConflict)
	require.NoError(t, m.Link("a.yaml", "RegionRoot1"))

	c, ok := m.Collection("RegionRoot1")
	require.True(t, ok)
	assert.Equal(t, "a.yaml", c.Library())
}

func TestMemoryInstancesAndUsers(t *testing.T) {
	m := NewMemory(StaticBundles{"a.yaml": {Collections: []BundleCollection{{Name: "RegionRoot1"}}}})
	require.NoError(t, m.Link("a.yaml", "RegionRoot1"))
	c, _ := m.Collection("RegionRoot1")

	first, err := m.NewInstance("REGION_A_INST", c)
	require.NoError(t, err)
	second, err := m.NewInstance("REGION_A_INST", c)
	require.NoError(t, err)

	assert.Equal(t, "REGION_A_INST", first.Name())
	assert.Equal(t, "REGION_A_INST.001", second.Name())
	assert.Equal(t, 2, c.Users())
	assert.Equal(t, c, first.InstanceCollection())

	assert.ErrorIs(t, m.RemoveCollection(c), ErrCollectionInUse)

	require.NoError(t, m.RemoveObject(first))
	require.NoError(t, m.RemoveObject(second))
	assert.ErrorIs(t, m.RemoveObject(second), ErrObjectNotFound)
	assert.Equal(t, 0, c.Users())

	require.NoError(t, m.RemoveCollection(c))
	_, ok := m.Collection("RegionRoot1")
	assert.False(t, ok)
}

func TestMemoryObjectState(t *testing.T) {
	m := NewMemory(nil)
	uav := m.EnsureObject("UAV")
	assert.Same(t, uav, m.EnsureObject("UAV"))
	assert.Nil(t, uav.InstanceCollection())

	uav.SetLocation(Vec3{X: 1, Y: 2, Z: 3})
	uav.SetHideViewport(true)
	uav.SetHideRender(true)

	got, ok := m.Object("UAV")
	require.True(t, ok)
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, got.Location())
	assert.True(t, got.HideViewport())
	assert.True(t, got.HideRender())
}

func TestVec3Sub(t *testing.T) {
	assert.Equal(t, Vec3{X: 970, Y: 0, Z: -150}, Vec3{X: 1170}.Sub(Vec3{X: 200, Z: 150}))
}
