//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package staging loads the raw input files into the staging schema.
package staging

import (
	"fmt"

	"github.com/pgEdge/pgedge-dwload/internal/config"
)

// Kind names a staged entity. It is also the staging table name and the
// base name of its input file.
type Kind string

// Entity kinds.
const (
	Customers  Kind = "customers"
	Products   Kind = "products"
	Orders     Kind = "orders"
	OrderItems Kind = "order_items"
)

// Kinds lists every entity kind in load order.
var Kinds = []Kind{Customers, Products, Orders, OrderItems}

// File returns the input file name for the kind.
func (k Kind) File() string {
	return string(k) + ".csv"
}

// Table returns the staging table name.
func (k Kind) Table() string {
	return string(k)
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind: %s", s)
}

// PolicyFor resolves the write policy configured for kind.
func PolicyFor(policies map[string]string, kind Kind) (string, error) {
	p, ok := policies[string(kind)]
	if !ok {
		return "", fmt.Errorf("no staging policy configured for %s", kind)
	}
	switch p {
	case config.PolicyAppend, config.PolicyReplace:
		return p, nil
	default:
		return "", fmt.Errorf("invalid staging policy %q for %s", p, kind)
	}
}
