package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// APIUsage holds the schema definition for the APIUsage entity.
// One row is written per request served by the gateway.
type APIUsage struct {
	ent.Schema
}

// Fields of the APIUsage.
func (APIUsage) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("user_id").
			Default(""),

		field.String("endpoint").
			NotEmpty(),

		field.String("method").
			NotEmpty(),

		field.Int("status_code"),

		field.Int64("processing_ms").
			Default(0),

		field.Time("created_at").
			Immutable(),

		field.JSON("metadata", map[string]any{}).
			Optional(),
	}
}

// Indexes of the APIUsage.
func (APIUsage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id"),
		index.Fields("endpoint"),
	}
}

// Annotations of the APIUsage.
func (APIUsage) Annotations() []entschema.Annotation {
	return []entschema.Annotation{
		entsql.Annotation{Table: "api_usage"},
	}
}
