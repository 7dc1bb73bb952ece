package scene

import (
	"fmt"
	"sort"
	"sync"
)

var _ Host = (*Memory)(nil)

// Memory is an in-process scene host. Collections are linked out of bundles
// resolved by a BundleLoader; objects live in a flat name-keyed scene.
type Memory struct {
	mu          sync.RWMutex
	loader      BundleLoader
	collections map[string]*memCollection
	objects     map[string]*memObject
}

func NewMemory(loader BundleLoader) *Memory {
	if loader == nil {
		loader = FileBundles{}
	}
	return &Memory{
		loader:      loader,
		collections: make(map[string]*memCollection),
		objects:     make(map[string]*memObject),
	}
}

// Link is a no-op only when the collection is already linked from the same
// bundle. A name linked from another bundle is reported as a conflict after the
// bundle itself has been resolved.
func (m *Memory) Link(bundlePath, collection string) error {
	m.mu.RLock()
	existing, linked := m.collections[collection]
	m.mu.RUnlock()
	if linked && existing.library == bundlePath {
		return nil
	}

	bundle, err := m.loader.LoadBundle(bundlePath)
	if err != nil {
		return err
	}
	found, ok := bundle.Find(collection)
	if !ok {
		return fmt.Errorf("%w: %q in %s (available: %v)", ErrCollectionNotFound, collection, bundlePath, bundle.Names())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, linked = m.collections[collection]; linked {
		if existing.library != bundlePath {
			return fmt.Errorf("%w: %q is linked from %s", ErrCollectionConflict, collection, existing.library)
		}
		return nil
	}
	m.collections[collection] = &memCollection{
		host:    m,
		name:    found.Name,
		library: bundlePath,
	}
	return nil
}

func (m *Memory) Collection(name string) (Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, false
	}
	return c, true
}

func (m *Memory) Object(name string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	return o, true
}

func (m *Memory) NewInstance(name string, coll Collection) (Object, error) {
	if coll == nil {
		return nil, ErrNilCollection
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.collections[coll.Name()]
	if !ok || Collection(mc) != coll {
		return nil, fmt.Errorf("%w: %s is not linked", ErrCollectionNotFound, coll.Name())
	}
	o := &memObject{name: m.uniqueNameLocked(name), instance: mc}
	m.objects[o.name] = o
	return o, nil
}

func (m *Memory) EnsureObject(name string) Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[name]; ok {
		return o
	}
	o := &memObject{name: name}
	m.objects[name] = o
	return o
}

func (m *Memory) RemoveObject(obj Object) error {
	if obj == nil {
		return ErrObjectNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[obj.Name()]
	if !ok || Object(o) != obj {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, obj.Name())
	}
	delete(m.objects, o.name)
	return nil
}

func (m *Memory) RemoveCollection(coll Collection) error {
	if coll == nil {
		return ErrNilCollection
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.collections[coll.Name()]
	if !ok || Collection(mc) != coll {
		return fmt.Errorf("%w: %s is not linked", ErrCollectionNotFound, coll.Name())
	}
	if users := m.usersLocked(mc); users > 0 {
		return fmt.Errorf("%w: %s has %d", ErrCollectionInUse, mc.name, users)
	}
	delete(m.collections, mc.name)
	return nil
}

// ObjectNames lists scene objects sorted by name.
func (m *Memory) ObjectNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectionNames lists linked collections sorted by name.
func (m *Memory) CollectionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) usersLocked(c *memCollection) int {
	n := 0
	for _, o := range m.objects {
		if o.instance == c {
			n++
		}
	}
	return n
}

// uniqueNameLocked mimics the host convention of NAME, NAME.001, NAME.002...
func (m *Memory) uniqueNameLocked(name string) string {
	if _, taken := m.objects[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", name, i)
		if _, taken := m.objects[candidate]; !taken {
			return candidate
		}
	}
}

type memCollection struct {
	host    *Memory
	name    string
	library string
}

func (c *memCollection) Name() string    { return c.name }
func (c *memCollection) Library() string { return c.library }

func (c *memCollection) Users() int {
	c.host.mu.RLock()
	defer c.host.mu.RUnlock()
	return c.host.usersLocked(c)
}

type memObject struct {
	mu       sync.RWMutex
	name     string
	instance *memCollection
	location Vec3
	hideView bool
	hideRend bool
}

func (o *memObject) Name() string { return o.name }

func (o *memObject) InstanceCollection() Collection {
	if o.instance == nil {
		return nil
	}
	return o.instance
}

func (o *memObject) Location() Vec3 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.location
}

func (o *memObject) SetLocation(v Vec3) {
	o.mu.Lock()
	o.location = v
	o.mu.Unlock()
}

func (o *memObject) HideViewport() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hideView
}

func (o *memObject) SetHideViewport(hide bool) {
	o.mu.Lock()
	o.hideView = hide
	o.mu.Unlock()
}

func (o *memObject) HideRender() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hideRend
}

func (o *memObject) SetHideRender(hide bool) {
	o.mu.Lock()
	o.hideRend = hide
	o.mu.Unlock()
}
