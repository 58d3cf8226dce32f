// Package migrate turns the ent schema definitions under pkg/storage/ent/schema
// into migration tables and applies them with ent's auto-migration.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	entschema "entgo.io/ent/schema"

	wenshuschema "github.com/papercomputeco/wenshu/pkg/storage/ent/schema"
)

// Table names used by the storage drivers.
const (
	SessionsTable  = "chat_sessions"
	QueriesTable   = "query_history"
	FeedbacksTable = "feedbacks"
	UsageTable     = "api_usage"
)

// entity is the part of an ent schema the migration reads.
type entity interface {
	Fields() []ent.Field
	Indexes() []ent.Index
	Annotations() []entschema.Annotation
}

var entities = []entity{
	wenshuschema.Session{},
	wenshuschema.QueryRecord{},
	wenshuschema.Feedback{},
	wenshuschema.APIUsage{},
}

// Tables returns the migration tables for every schema entity.
func Tables() ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(entities))
	for _, e := range entities {
		t, err := table(e)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func table(e entity) (*schema.Table, error) {
	name := tableName(e)
	if name == "" {
		return nil, fmt.Errorf("schema %T has no table annotation", e)
	}

	t := schema.NewTable(name)
	columns := map[string]*schema.Column{}
	for _, f := range e.Fields() {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", name, d.Name, d.Err)
		}

		c := &schema.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Unique:   d.Unique,
			Nullable: d.Optional,
			Size:     int64(d.Size),
		}
		if d.StorageKey != "" {
			c.Name = d.StorageKey
		}
		switch v := d.Default.(type) {
		case string, bool, int, int64:
			c.Default = v
		}

		columns[d.Name] = c
		if d.Name == "id" {
			c.Unique = false
			t.AddPrimary(c)
			continue
		}
		t.AddColumn(c)
	}

	for _, i := range e.Indexes() {
		d := i.Descriptor()
		idx := &schema.Index{
			Name:   name + "_" + strings.Join(d.Fields, "_"),
			Unique: d.Unique,
		}
		for _, f := range d.Fields {
			c, ok := columns[f]
			if !ok {
				return nil, fmt.Errorf("index on %s references unknown field %q", name, f)
			}
			idx.Columns = append(idx.Columns, c)
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return t, nil
}

func tableName(e entity) string {
	for _, a := range e.Annotations() {
		switch a := a.(type) {
		case entsql.Annotation:
			return a.Table
		case *entsql.Annotation:
			return a.Table
		}
	}
	return ""
}

// Schema applies the migration tables through an ent dialect driver.
type Schema struct {
	drv dialect.Driver
}

// NewSchema returns a Schema bound to drv.
func NewSchema(drv dialect.Driver) *Schema {
	return &Schema{drv: drv}
}

// Create runs ent's auto-migration, adding any missing tables, columns and
// indexes. Existing data is left in place.
func (s *Schema) Create(ctx context.Context, opts ...schema.MigrateOption) error {
	tables, err := Tables()
	if err != nil {
		return err
	}
	m, err := schema.NewMigrate(s.drv, opts...)
	if err != nil {
		return fmt.Errorf("ent/migrate: %w", err)
	}
	return m.Create(ctx, tables...)
}
