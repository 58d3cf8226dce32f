package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// QueryRecord holds the schema definition for the QueryRecord entity.
// This is one question and the answer the gateway streamed back for it.
type QueryRecord struct {
	ent.Schema
}

// Fields of the QueryRecord.
func (QueryRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("conversation_id").
			Default(""),

		field.String("user_id").
			NotEmpty(),

		field.String("message_id").
			Default(""),

		field.Text("query"),

		field.Text("answer"),

		// query_type is "query" or "analysis"
		field.String("query_type").
			Default("query"),

		field.JSON("inputs", map[string]any{}).
			Optional(),

		field.JSON("metadata", map[string]any{}).
			Optional(),

		field.Time("created_at").
			Immutable(),

		field.Int64("processing_ms").
			Default(0),

		// seq breaks ties between records created within the same instant
		field.Int64("seq"),
	}
}

// Indexes of the QueryRecord.
func (QueryRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "created_at"),
		index.Fields("conversation_id"),
	}
}

// Annotations of the QueryRecord.
func (QueryRecord) Annotations() []entschema.Annotation {
	return []entschema.Annotation{
		entsql.Annotation{Table: "query_history"},
	}
}
