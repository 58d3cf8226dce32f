package migrate_test

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/wenshu/pkg/storage/ent/migrate"
)

var _ = Describe("Tables", func() {
	var tables map[string]*schema.Table

	BeforeEach(func() {
		list, err := migrate.Tables()
		Expect(err).NotTo(HaveOccurred())

		tables = map[string]*schema.Table{}
		for _, t := range list {
			tables[t.Name] = t
		}
	})

	column := func(t *schema.Table, name string) *schema.Column {
		for _, c := range t.Columns {
			if c.Name == name {
				return c
			}
		}
		return nil
	}

	It("builds one table per entity", func() {
		Expect(tables).To(HaveLen(4))
		Expect(tables).To(HaveKey(migrate.SessionsTable))
		Expect(tables).To(HaveKey(migrate.QueriesTable))
		Expect(tables).To(HaveKey(migrate.FeedbacksTable))
		Expect(tables).To(HaveKey(migrate.UsageTable))
	})

	It("keys every table by its string id", func() {
		for name, t := range tables {
			Expect(t.PrimaryKey).To(HaveLen(1), name)
			Expect(t.PrimaryKey[0].Name).To(Equal("id"), name)
			Expect(t.PrimaryKey[0].Type).To(Equal(field.TypeString), name)
		}
	})

	It("makes the session conversation id unique", func() {
		c := column(tables[migrate.SessionsTable], "conversation_id")
		Expect(c).NotTo(BeNil())
		Expect(c.Unique).To(BeTrue())
	})

	It("stores query payloads as optional json with a tie-break sequence", func() {
		t := tables[migrate.QueriesTable]

		inputs := column(t, "inputs")
		Expect(inputs).NotTo(BeNil())
		Expect(inputs.Type).To(Equal(field.TypeJSON))
		Expect(inputs.Nullable).To(BeTrue())

		seq := column(t, "seq")
		Expect(seq).NotTo(BeNil())
		Expect(seq.Type).To(Equal(field.TypeInt64))
	})

	It("names indexes after their table and fields", func() {
		var names []string
		for _, idx := range tables[migrate.QueriesTable].Indexes {
			names = append(names, idx.Name)
		}
		Expect(names).To(ConsistOf("query_history_user_id_created_at", "query_history_conversation_id"))
	})
})
