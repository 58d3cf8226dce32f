package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Feedback holds the schema definition for the Feedback entity.
type Feedback struct {
	ent.Schema
}

// Fields of the Feedback.
func (Feedback) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("message_id").
			NotEmpty(),

		field.String("user_id").
			NotEmpty(),

		// an empty rating records a cleared rating
		field.String("rating").
			Default(""),

		field.Text("content").
			Default(""),

		field.Time("created_at").
			Immutable(),

		field.Time("updated_at"),
	}
}

// Indexes of the Feedback.
func (Feedback) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("message_id"),
	}
}

// Annotations of the Feedback.
func (Feedback) Annotations() []entschema.Annotation {
	return []entschema.Annotation{
		entsql.Annotation{Table: "feedbacks"},
	}
}
