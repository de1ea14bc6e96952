package repository

import (
	"errors"

	"github.com/flasheng/flasheng/internal/domain"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// Sessions one gorm session per resource, either a plain store handle or an open transaction
type Sessions struct {
	Users      *gorm.DB
	Flashcards *gorm.DB
	Catalog    *gorm.DB
	Orders     *gorm.DB
}

// Repositories bundle bound to one set of sessions
type Repositories struct {
	Users      UserRepository
	Flashcards FlashcardRepository
	Products   ProductRepository
	Orders     OrderRepository
}

func NewRepositories(s Sessions) *Repositories {
	return &Repositories{
		Users:      NewGormUserRepository(s.Users),
		Flashcards: NewGormFlashcardRepository(s.Flashcards),
		Products:   NewGormProductRepository(s.Catalog),
		Orders:     NewGormOrderRepository(s.Orders),
	}
}

// translate maps a missing row to NotFoundError and wraps anything else
func translate(err error, entity string, id int64) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(entity, id)
	}
	return pkgerrors.Wrapf(err, "query %s %d", entity, id)
}
