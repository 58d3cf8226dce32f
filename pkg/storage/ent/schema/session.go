package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	entschema "entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session holds the schema definition for the Session entity.
// One row exists per upstream conversation.
type Session struct {
	ent.Schema
}

// Fields of the Session.
func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("user_id").
			NotEmpty(),

		field.String("conversation_id").
			Unique().
			NotEmpty(),

		// title is only ever filled once, by the first query of the conversation
		field.String("title").
			Default(""),

		field.Time("created_at").
			Immutable(),

		field.Time("updated_at"),

		field.Bool("is_active").
			Default(true),
	}
}

// Indexes of the Session.
func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "updated_at"),
	}
}

// Annotations of the Session.
func (Session) Annotations() []entschema.Annotation {
	return []entschema.Annotation{
		entsql.Annotation{Table: "chat_sessions"},
	}
}
