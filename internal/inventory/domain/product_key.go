package domain

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
)

// ProductKey identifies a product either by catalog id or by the free-text
// name a household typed. Exactly one of the two is set.
type ProductKey struct {
	ProductID *snowflake.ID
	Name      string
}

func (k ProductKey) Validate() error {
	hasID := k.ProductID != nil && *k.ProductID > 0
	hasName := strings.TrimSpace(k.Name) != ""
	switch {
	case hasID && hasName:
		return fmt.Errorf("%w: product_id and custom name are mutually exclusive", ErrInvalidProductKey)
	case !hasID && !hasName:
		return fmt.Errorf("%w: product_id or custom name is required", ErrInvalidProductKey)
	}
	if !hasID && slug.Make(k.Name) == "" {
		return fmt.Errorf("%w: custom name has no usable characters", ErrInvalidProductKey)
	}
	return nil
}

// String is the grouping key stored next to every event. Names are slugged so
// "Whole Milk" and "whole  milk" land on the same series.
func (k ProductKey) String() string {
	if k.ProductID != nil && *k.ProductID > 0 {
		return "product:" + k.ProductID.String()
	}
	return "name:" + slug.Make(k.Name)
}

// ParseProductKey builds and validates a key from transport values.
func ParseProductKey(productID, name string) (ProductKey, error) {
	key := ProductKey{Name: strings.TrimSpace(name)}
	if v := strings.TrimSpace(productID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil || id <= 0 {
			return ProductKey{}, fmt.Errorf("%w: product_id", ErrInvalidProductKey)
		}
		key.ProductID = &id
	}
	if err := key.Validate(); err != nil {
		return ProductKey{}, err
	}
	return key, nil
}
