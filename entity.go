package resthook

import "github.com/xraph/resthook/internal/entity"

// Entity is the timestamp block embedded by every stored resthook object.
type Entity = entity.Entity

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
