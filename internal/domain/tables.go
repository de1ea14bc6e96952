package domain

// Resource names of the partitioned stores
const (
	ResourceUsers      = "users"
	ResourceFlashcards = "flashcards"
	ResourceCatalog    = "catalog"
	ResourceOrders     = "orders"
)

// Resources in their fixed binding order
var Resources = []string{ResourceUsers, ResourceFlashcards, ResourceCatalog, ResourceOrders}

var Tables = map[string][]interface{}{
	ResourceUsers:      {&User{}},
	ResourceFlashcards: {&Flashcard{}},
	ResourceCatalog:    {&Product{}},
	// Orders
	ResourceOrders: {
		&Order{},
		&OrderItem{},
		&Payment{},
	},
}

// TablesFor returns the models owned by the given resources
func TablesFor(resources ...string) []interface{} {
	var tables []interface{}
	for _, res := range resources {
		tables = append(tables, Tables[res]...)
	}
	return tables
}
