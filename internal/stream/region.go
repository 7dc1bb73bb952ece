package stream

import (
	"fmt"
	"strings"

	"github.com/zeusync/regionstream/internal/scene"
)

// Descriptor is the static description of one streamable region.
type Descriptor struct {
	ID         string
	Bundle     string
	Collection string
	Position   scene.Vec3
}

// NormalizeID trims and upper-cases a region identifier.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// InstanceName is the canonical proxy object name for a region.
func InstanceName(id string) string {
	return "REGION_" + id + "_INST"
}

// Table is the immutable region descriptor table, kept in declaration order.
type Table struct {
	order []string
	byID  map[string]Descriptor
}

func NewTable(descriptors ...Descriptor) (*Table, error) {
	t := &Table{
		order: make([]string, 0, len(descriptors)),
		byID:  make(map[string]Descriptor, len(descriptors)),
	}
	bundles := make(map[string]string, len(descriptors))
	for i, d := range descriptors {
		d.ID = NormalizeID(d.ID)
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("%w: region %d has no id", ErrInvalidTable, i)
		case d.Bundle == "":
			return nil, fmt.Errorf("%w: region %s has no bundle", ErrInvalidTable, d.ID)
		case d.Collection == "":
			return nil, fmt.Errorf("%w: region %s has no collection", ErrInvalidTable, d.ID)
		}
		if _, dup := t.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate region %s", ErrInvalidTable, d.ID)
		}
		// The host keys linked collections by name.
		if b, ok := bundles[d.Collection]; ok && b != d.Bundle {
			return nil, fmt.Errorf("%w: collection %s comes from both %s and %s", ErrInvalidTable, d.Collection, b, d.Bundle)
		}
		bundles[d.Collection] = d.Bundle
		t.order = append(t.order, d.ID)
		t.byID[d.ID] = d
	}
	return t, nil
}

func (t *Table) Get(id string) (Descriptor, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// IDs returns region identifiers in declaration order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.order...)
}

func (t *Table) Len() int { return len(t.order) }
