package replication

// DefaultRegistry таблицы приложения в порядке внешних ключей:
// sale ссылается на client, sale_item на sale и product.
func DefaultRegistry() *Registry {
	return MustRegistry(
		TableSchema{
			Name:       "client",
			PrimaryKey: "id",
			BoolFields: []string{"active"},
			TimeFields: []string{"created_at"},
		},
		TableSchema{
			Name:       "product",
			PrimaryKey: "id",
			BoolFields: []string{"available"},
			TimeFields: []string{"created_at"},
		},
		TableSchema{
			Name:       "sale",
			PrimaryKey: "id",
			BoolFields: []string{"paid", "delivered"},
			TimeFields: []string{"sold_at"},
		},
		TableSchema{
			Name:       "sale_item",
			PrimaryKey: "id",
			BoolFields: []string{"gift"},
		},
	)
}
