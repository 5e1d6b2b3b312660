package catalog

// FieldDef is one structured attribute a category asks for.
type FieldDef struct {
	Key    string
	Prompt string
}

// Category groups standard products and defines their field order.
type Category struct {
	Name   string
	Label  string
	Fields []FieldDef
}

var categories = []Category{
	{
		Name:  "laptops",
		Label: "💻 Laptops",
		Fields: []FieldDef{
			{"brand", "Brand (e.g., HP, Dell, MacBook)"},
			{"model", "Model (e.g., EliteBook 840 G5)"},
			{"processor", "Processor (e.g., Intel i5 8th Gen)"},
			{"ram", "RAM (e.g., 8GB, 16GB)"},
			{"storage", "Storage (e.g., 256GB SSD)"},
			{"condition", "Condition (e.g., New, Used - Like New)"},
		},
	},
	{
		Name:  "phones",
		Label: "📱 Phones",
		Fields: []FieldDef{
			{"brand", "Brand (e.g., Samsung, iPhone)"},
			{"model", "Model (e.g., Galaxy S21, iPhone 13)"},
			{"storage", "Storage (e.g., 128GB)"},
			{"condition", "Condition (e.g., New, Used)"},
			{"battery", "Battery Health (e.g., 90%)"},
		},
	},
	{
		Name:  "cars",
		Label: "🚗 Cars",
		Fields: []FieldDef{
			{"brand", "Brand (e.g., Toyota, Hyundai)"},
			{"model", "Model (e.g., Corolla, Vitz)"},
			{"year", "Year (e.g., 2015)"},
			{"mileage", "Mileage (e.g., 85,000 km)"},
			{"fuel_type", "Fuel Type (e.g., Petrol, Diesel)"},
			{"condition", "Condition (e.g., Excellent, Good)"},
		},
	},
	{
		Name:  "houses",
		Label: "🏠 Houses",
		Fields: []FieldDef{
			{"type", "Type (e.g., Apartment, Villa)"},
			{"bedrooms", "Bedrooms (e.g., 3)"},
			{"location", "Location (e.g., Bole, Addis Ababa)"},
			{"size", "Size (e.g., 120 sqm)"},
			{"condition", "Condition (e.g., New, Renovated)"},
		},
	},
}

// Categories returns the known categories in menu order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// LookupCategory finds a category by name.
func LookupCategory(name string) (Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}
