package option

import "gorm.io/gorm"

// QueryOption customizes a gorm query built by the generic repository.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type optionFunc func(*gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// WithLimit caps the number of rows returned.
func WithLimit(n int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Limit(n) })
}

// WithOrder applies an ORDER BY clause.
func WithOrder(order string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Order(order) })
}

// WithWhere applies an additional WHERE clause.
func WithWhere(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) })
}
