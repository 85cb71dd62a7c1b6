package featurestore

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usgs-gages/internal/schema"
)

// Memory keeps features in process. It stages features before clipping.
type Memory struct {
	name     string
	fields   []schema.Field
	features []Feature
	created  bool
}

// NewMemory returns an empty store with a unique name.
func NewMemory() *Memory {
	return &Memory{name: "memory/gages_" + uuid.NewString()}
}

// Name implements Destination.
func (m *Memory) Name() string { return m.name }

// SupportsNull implements Destination.
func (m *Memory) SupportsNull() bool { return true }

// Create implements Destination.
func (m *Memory) Create(_ context.Context, fields []schema.Field) error {
	if m.created {
		return eris.Errorf("featurestore: %s already created", m.name)
	}
	if err := checkFields(fields); err != nil {
		return err
	}
	m.fields = fields
	m.created = true
	return nil
}

// Insert implements Destination.
func (m *Memory) Insert(_ context.Context, f Feature) error {
	if !m.created {
		return eris.New("featurestore: memory insert before create")
	}
	values, err := attrValues(f, m.fields)
	if err != nil {
		return err
	}
	m.features = append(m.features, Feature{Key: f.Key, Attrs: values, Lon: f.Lon, Lat: f.Lat})
	return nil
}

// Close implements Destination. Stored features stay readable.
func (m *Memory) Close() error { return nil }

// Abort implements Destination.
func (m *Memory) Abort() error {
	m.features = nil
	m.created = false
	return nil
}

// Fields returns the fields passed to Create.
func (m *Memory) Fields() []schema.Field { return m.fields }

// Features returns the stored features in insertion order.
func (m *Memory) Features() []Feature { return m.features }
