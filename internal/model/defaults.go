package model

// DefaultCategories mirrors the rows seeded by migration 000002.
// The store never writes these; the slice exists for lookups and tests.
var DefaultCategories = []Category{
	{Name: "Food", Icon: "🍕", ColorHex: "#FF6B6B", IsDefault: true},
	{Name: "Transport", Icon: "🚗", ColorHex: "#4ECDC4", IsDefault: true},
	{Name: "Shopping", Icon: "🛒", ColorHex: "#45B7D1", IsDefault: true},
	{Name: "Bills", Icon: "💡", ColorHex: "#96CEB4", IsDefault: true},
	{Name: "Entertainment", Icon: "🎬", ColorHex: "#DDA0DD", IsDefault: true},
	{Name: "Healthcare", Icon: "🏥", ColorHex: "#98D8C8", IsDefault: true},
	{Name: "Education", Icon: "📚", ColorHex: "#F7DC6F", IsDefault: true},
	{Name: "Salary", Icon: "💰", ColorHex: "#52C41A", IsDefault: true},
	{Name: "Investment", Icon: "📈", ColorHex: "#722ED1", IsDefault: true},
	{Name: "Others", Icon: "📦", ColorHex: "#95A5A6", IsDefault: true},
	{Name: "Business", Icon: "💼", ColorHex: "#1890FF", IsDefault: true},
	{Name: "Freelance", Icon: "💻", ColorHex: "#13C2C2", IsDefault: true},
	{Name: "Gift", Icon: "🎁", ColorHex: "#EB2F96", IsDefault: true},
	{Name: "Rental", Icon: "🏠", ColorHex: "#FA8C16", IsDefault: true},
	{Name: "Refund", Icon: "↩️", ColorHex: "#A0D911", IsDefault: true},
}

// Custom categories created on first use get these.
const (
	CustomCategoryIcon  = "🏷️"
	CustomCategoryColor = "#95A5A6"
)

// IsDefaultCategory reports whether name belongs to the shared default set.
func IsDefaultCategory(name string) bool {
	for _, c := range DefaultCategories {
		if c.Name == name {
			return true
		}
	}
	return false
}
