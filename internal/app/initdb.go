package app

import (
	"context"
	"errors"
	"time"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	seedUsers = []domain.User{
		{Email: "admin@flasheng.com", DisplayName: "Admin User", Role: domain.RoleAdmin, Active: true},
		{Email: "john@flasheng.com", DisplayName: "John Doe", Role: domain.RoleUser, Active: true},
		{Email: "jane@flasheng.com", DisplayName: "Jane Smith", Role: domain.RoleUser, Active: true},
	}

	seedProducts = []domain.Product{
		{Name: "Business English Course", Price: decimal.RequireFromString("29.99"), Available: true},
		{Name: "Travel Phrases Pack", Price: decimal.RequireFromString("19.99"), Available: true},
		{Name: "Advanced Grammar", Price: decimal.RequireFromString("39.99"), Available: true},
		{Name: "IELTS Preparation", Price: decimal.RequireFromString("49.99"), Available: true},
	}
)

type seedCard struct {
	owner string
	card  domain.Flashcard
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var seedCards = []seedCard{
	{"admin@flasheng.com", domain.Flashcard{Category: "Food", EnglishWord: "apple", Translation: "яблуко",
		Definition: "A round fruit with red or green skin", Example: "I eat an apple every day.", Difficulty: "Easy"}},
	{"admin@flasheng.com", domain.Flashcard{Category: "Food", EnglishWord: "bread", Translation: "хліб",
		Definition: "A basic food made from flour and water", Example: "I buy fresh bread every morning.", Difficulty: "Easy"}},
	{"admin@flasheng.com", domain.Flashcard{Category: "Business English", EnglishWord: "meeting", Translation: "зустріч",
		Definition: "A gathering of people for discussion", Example: "We have a meeting at 3 PM.", Difficulty: "Medium",
		Public: true, Price: price("29.99")}},
	{"john@flasheng.com", domain.Flashcard{Category: "Travel Phrases", EnglishWord: "airport", Translation: "аеропорт",
		Definition: "A place where planes take off and land", Example: "I need to be at the airport two hours early.", Difficulty: "Easy",
		Public: true, Price: price("19.99")}},
	{"john@flasheng.com", domain.Flashcard{Category: "Business English", EnglishWord: "presentation", Translation: "презентація",
		Definition: "A speech or talk in which something is shown", Example: "I need to prepare a presentation for tomorrow.", Difficulty: "Hard",
		Public: true, Price: price("29.99")}},
}

// checkFixtures seeds each resource that is still empty
func (a *Application) checkFixtures(ctx context.Context) error {
	repos, err := a.factory.Repos()
	if err != nil {
		return err
	}
	if err := a.checkUsers(ctx, repos); err != nil {
		return err
	}
	if err := a.checkProducts(ctx, repos); err != nil {
		return err
	}
	if err := a.checkFlashcards(ctx, repos); err != nil {
		return err
	}
	return a.checkOrders(ctx, repos)
}

func (a *Application) checkUsers(ctx context.Context, repos *repository.Repositories) error {
	count, err := repos.Users.Count(ctx)
	if err != nil || count > 0 {
		return err
	}
	for _, u := range seedUsers {
		u := u
		if err := repos.Users.Create(ctx, &u); err != nil {
			return err
		}
		zap.L().Info("initialized default user", zap.String("email", u.Email))
	}
	return nil
}

func (a *Application) checkProducts(ctx context.Context, repos *repository.Repositories) error {
	count, err := repos.Products.Count(ctx)
	if err != nil || count > 0 {
		return err
	}
	for _, p := range seedProducts {
		p := p
		if err := repos.Products.Create(ctx, &p); err != nil {
			return err
		}
		zap.L().Info("initialized default product", zap.String("name", p.Name))
	}
	return nil
}

// lookupUser nil when the seed user was removed or never created
func lookupUser(ctx context.Context, repos *repository.Repositories, email string) (*domain.User, error) {
	u, err := repos.Users.GetByEmail(ctx, email)
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return nil, nil
	}
	return u, err
}

func (a *Application) checkFlashcards(ctx context.Context, repos *repository.Repositories) error {
	count, err := repos.Flashcards.Count(ctx)
	if err != nil || count > 0 {
		return err
	}
	for _, sc := range seedCards {
		owner, err := lookupUser(ctx, repos, sc.owner)
		if err != nil {
			return err
		}
		if owner == nil {
			continue
		}
		card := sc.card
		card.UserID = owner.ID
		if err := repos.Flashcards.Create(ctx, &card); err != nil {
			return err
		}
	}
	zap.L().Info("initialized default flashcards", zap.Int("count", len(seedCards)))
	return nil
}

type seedLine struct {
	product  string
	quantity int
}

type seedOrder struct {
	owner   string
	status  domain.OrderStatus
	age     time.Duration
	lines   []seedLine
	payment string
}

var seedOrders = []seedOrder{
	{
		owner:   "john@flasheng.com",
		status:  domain.OrderStatusCompleted,
		age:     10 * 24 * time.Hour,
		lines:   []seedLine{{"Business English Course", 1}, {"Travel Phrases Pack", 1}},
		payment: "Card",
	},
	{
		owner:  "jane@flasheng.com",
		status: domain.OrderStatusPending,
		age:    2 * 24 * time.Hour,
		lines:  []seedLine{{"Advanced Grammar", 1}},
	},
}

// checkOrders writes the seed orders in one unit of work over the orders store.
// Prices come from the seeded catalog.
func (a *Application) checkOrders(ctx context.Context, repos *repository.Repositories) error {
	count, err := repos.Orders.Count(ctx)
	if err != nil || count > 0 {
		return err
	}
	products, err := repos.Products.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byName[p.Name] = p
	}

	u, err := a.factory.New(domain.ResourceOrders)
	if err != nil {
		return err
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return err
	}
	tx := u.Repos()

	for _, so := range seedOrders {
		owner, err := lookupUser(ctx, tx, so.owner)
		if err != nil {
			return err
		}
		if owner == nil {
			continue
		}
		placed := time.Now().Add(-so.age)
		o := &domain.Order{UserID: owner.ID, Status: so.status, TotalAmount: decimal.Zero, CreatedAt: placed}
		if err := tx.Orders.CreateHeader(ctx, o); err != nil {
			return err
		}
		total := decimal.Zero
		for _, line := range so.lines {
			p, ok := byName[line.product]
			if !ok {
				continue
			}
			item := &domain.OrderItem{
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  line.quantity,
				UnitPrice: p.Price,
				LineTotal: domain.LineTotal(p.Price, line.quantity),
			}
			if err := tx.Orders.CreateItem(ctx, item); err != nil {
				return err
			}
			total = total.Add(item.LineTotal)
		}
		if err := tx.Orders.UpdateTotal(ctx, o.ID, total); err != nil {
			return err
		}
		if so.payment != "" {
			if err := tx.Orders.CreatePayment(ctx, &domain.Payment{
				OrderID: o.ID,
				Amount:  total,
				Method:  so.payment,
				Status:  domain.PaymentStatusPaid,
				PaidAt:  placed,
			}); err != nil {
				return err
			}
		}
		zap.L().Info("initialized default order",
			zap.Int64("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.String("total", total.StringFixed(2)))
	}
	return u.Commit(ctx)
}
