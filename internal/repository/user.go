package repository

import (
	"context"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// UserRepository identity lookups
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Count(ctx context.Context) (int64, error)
}

// FlashcardRepository card lookups, read mostly
type FlashcardRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Flashcard, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Flashcard, error)
	ListPublic(ctx context.Context) ([]domain.Flashcard, error)
	Create(ctx context.Context, card *domain.Flashcard) error
	Count(ctx context.Context) (int64, error)
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "User", id)
	}
	return &user, nil
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "User", 0)
	}
	return &user, nil
}

func (r *GormUserRepository) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, errors.Wrap(err, "list users")
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(user).Error, "create user")
}

func (r *GormUserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error
	return count, errors.Wrap(err, "count users")
}

type GormFlashcardRepository struct {
	db *gorm.DB
}

func NewGormFlashcardRepository(db *gorm.DB) *GormFlashcardRepository {
	return &GormFlashcardRepository{db: db}
}

func (r *GormFlashcardRepository) GetByID(ctx context.Context, id int64) (*domain.Flashcard, error) {
	var card domain.Flashcard
	if err := r.db.WithContext(ctx).First(&card, id).Error; err != nil {
		return nil, translate(err, "Flashcard", id)
	}
	return &card, nil
}

func (r *GormFlashcardRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Flashcard, error) {
	var cards []domain.Flashcard
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&cards).Error
	return cards, errors.Wrapf(err, "list flashcards of user %d", userID)
}

func (r *GormFlashcardRepository) ListPublic(ctx context.Context) ([]domain.Flashcard, error) {
	var cards []domain.Flashcard
	err := r.db.WithContext(ctx).Where("public = ?", true).Order("category, english_word").Find(&cards).Error
	return cards, errors.Wrap(err, "list public flashcards")
}

func (r *GormFlashcardRepository) Create(ctx context.Context, card *domain.Flashcard) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(card).Error, "create flashcard")
}

func (r *GormFlashcardRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Flashcard{}).Count(&count).Error
	return count, errors.Wrap(err, "count flashcards")
}
