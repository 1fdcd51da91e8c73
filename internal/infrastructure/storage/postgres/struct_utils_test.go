package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tillpoint/internal/domain/catalogs/product"
)

func TestExtractDBColumns_EmbeddedStructs(t *testing.T) {
	cols := ExtractDBColumns[product.Product]()

	// From entity.BaseEntity via entity.Catalog
	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "version")
	assert.Contains(t, cols, "deletion_mark")

	// From entity.Catalog
	assert.Contains(t, cols, "code")
	assert.Contains(t, cols, "name")

	// Own fields
	assert.Contains(t, cols, "barcode")
	assert.Contains(t, cols, "price")
	assert.Contains(t, cols, "is_weighted")
}

func TestStructToMap(t *testing.T) {
	p := product.NewProduct("SKU-1", "Mineral water 0.5l", product.UnitPiece, decimal.RequireFromString("1.99"))

	m := StructToMap(p)

	assert.Equal(t, "SKU-1", m["code"])
	assert.Equal(t, "Mineral water 0.5l", m["name"])
	assert.Equal(t, false, m["is_weighted"])
	assert.Equal(t, p.ID, m["id"])

	// Untagged and ignored fields stay out.
	assert.NotContains(t, m, "-")
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap("receipt"))
}

func TestExtractDBColumns_CachedStable(t *testing.T) {
	first := ExtractDBColumns[product.Product]()
	second := ExtractDBColumns[product.Product]()
	assert.Equal(t, first, second)
}
