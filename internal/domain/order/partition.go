package order

import "github.com/xenking/storefront/internal/domain/product"

// Line is a cart item resolved against the catalog.
type Line struct {
	Item    CartItem
	Product product.Product
}

// Group holds the lines sold by one store.
type Group struct {
	StoreID string
	Lines   []Line
}

// Partition splits lines by store. Groups appear in the order their store is
// first seen and lines keep their input order within a group.
func Partition(lines []Line) []Group {
	var (
		groups []Group
		index  = make(map[string]int)
	)
	for _, l := range lines {
		i, ok := index[l.Product.StoreID]
		if !ok {
			i = len(groups)
			index[l.Product.StoreID] = i
			groups = append(groups, Group{StoreID: l.Product.StoreID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
	}
	return groups
}
