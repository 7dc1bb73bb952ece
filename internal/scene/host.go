// Package scene models the scene host the region streamer drives: linking
// collections out of external source bundles, collection-instance proxy
// objects, and the per-object visibility flags.
package scene

import (
	"errors"
	"fmt"
)

// Host errors
var (
	ErrBundleNotFound     = errors.New("source bundle not found")
	ErrCollectionNotFound = errors.New("collection not found in bundle")
	ErrCollectionInUse    = errors.New("collection still has users")
	ErrCollectionConflict = errors.New("collection name linked from another bundle")
	ErrObjectNotFound     = errors.New("object not found")
	ErrNilCollection      = errors.New("nil collection")
)

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// Collection is a linked collection. The host owns it; callers hold handles only.
type Collection interface {
	Name() string
	// Library is the source bundle the collection was linked from.
	Library() string
	// Users counts scene objects that instance this collection.
	Users() int
}

// Object is a scene object. Proxies instance a Collection; plain objects return nil.
type Object interface {
	Name() string
	InstanceCollection() Collection

	Location() Vec3
	SetLocation(Vec3)

	HideViewport() bool
	SetHideViewport(bool)
	HideRender() bool
	SetHideRender(bool)
}

// Host is the set of primitives the streamer is allowed to call.
type Host interface {
	// Link makes the named collection of a source bundle available in the scene.
	// Linking an already linked collection from the same bundle is a no-op.
	Link(bundlePath, collection string) error
	Collection(name string) (Collection, bool)

	Object(name string) (Object, bool)
	// NewInstance creates a proxy object instancing coll and links it into the scene.
	// A name already taken gets a numeric suffix, so the returned name can differ.
	NewInstance(name string, coll Collection) (Object, error)
	// EnsureObject returns the named plain object, creating it when missing.
	EnsureObject(name string) Object

	RemoveObject(obj Object) error
	RemoveCollection(coll Collection) error
}
