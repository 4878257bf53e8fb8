package catalog

// Default returns the built-in catalog used when no catalog file is
// configured. It covers the demo warehouse schemas (sales, commerce,
// customer, finance, marketing, inventory).
func Default() *Catalog {
	c, err := build(catalogFile{
		Metrics: []Metric{
			{
				Name:        "revenue",
				Expression:  "SUM(order_amount)",
				Table:       "sales.orders",
				Column:      "order_amount",
				Aggregation: "SUM",
				Synonyms:    []string{"revenue", "sales", "total_sales", "turnover", "income"},
			},
			{
				Name:        "profit",
				Expression:  "SUM(order_amount - order_cost)",
				Table:       "sales.orders",
				Aggregation: "SUM",
				Synonyms:    []string{"profit", "net_profit", "earnings"},
			},
			{
				Name:        "orders",
				Expression:  "COUNT(DISTINCT order_id)",
				Table:       "sales.orders",
				Column:      "order_id",
				Aggregation: "COUNT",
				Synonyms:    []string{"orders", "transactions", "purchases"},
			},
			{
				Name:        "customers",
				Expression:  "COUNT(DISTINCT customer_id)",
				Table:       "sales.orders",
				Column:      "customer_id",
				Aggregation: "COUNT",
				Synonyms:    []string{"customers", "users", "accounts", "clients"},
			},
		},
		Dimensions: []Dimension{
			{
				Name:     "product_category",
				Table:    "commerce.products",
				Column:   "category",
				Type:     "string",
				Synonyms: []string{"category", "product_category", "product_type", "product_group"},
			},
			{
				Name:     "region",
				Table:    "sales.orders",
				Column:   "region",
				Type:     "string",
				Synonyms: []string{"region", "area", "territory", "zone"},
			},
			{
				Name:     "country",
				Table:    "sales.orders",
				Column:   "country",
				Type:     "string",
				Synonyms: []string{"country", "nation"},
			},
			{
				Name:     "channel",
				Table:    "sales.orders",
				Column:   "sales_channel",
				Type:     "string",
				Synonyms: []string{"channel", "sales_channel", "distribution_channel"},
			},
		},
		Joins: []JoinEdge{
			{
				FromDomain: "sales",
				ToDomain:   "commerce",
				FromTable:  "sales.orders",
				ToTable:    "commerce.products",
				Condition:  "sales.orders.product_id = commerce.products.product_id",
				Kind:       "INNER",
			},
			{
				FromDomain: "sales",
				ToDomain:   "customer",
				FromTable:  "sales.orders",
				ToTable:    "customer.customers",
				Condition:  "sales.orders.customer_id = customer.customers.customer_id",
				Kind:       "INNER",
			},
			{
				FromDomain: "commerce",
				ToDomain:   "sales",
				FromTable:  "commerce.products",
				ToTable:    "sales.orders",
				Condition:  "commerce.products.product_id = sales.orders.product_id",
				Kind:       "INNER",
			},
		},
		DomainKeywords: map[string][]string{
			"sales":     {"revenue", "sales", "orders", "transactions"},
			"commerce":  {"product", "category", "catalog", "sku"},
			"customer":  {"customer", "user", "account", "subscription"},
			"finance":   {"cost", "profit", "margin", "expense", "budget"},
			"marketing": {"campaign", "promotion", "channel", "conversion"},
			"inventory": {"stock", "inventory", "warehouse", "supply"},
		},
		FallbackDomain: "sales",
		Decomposition: map[string][]string{
			"revenue":   {"product_category", "region", "channel"},
			"profit":    {"product_category", "region", "channel"},
			"orders":    {"product_category", "region", "channel"},
			"customers": {"region", "channel"},
		},
		EventTables: []EventTable{
			{Name: "promotions", Table: "marketing.promotions"},
			{Name: "stockouts", Table: "inventory.stockouts"},
			{Name: "pricing", Table: "commerce.price_changes"},
			{Name: "campaigns", Table: "marketing.campaigns"},
		},
	})
	if err != nil {
		// defaults are compile-time data; a failure here is a programming error
		panic(err)
	}
	return c
}
