package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProducts(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	rows, err := e.svc.ListProducts(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, p := range rows {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Advanced Grammar", "Business English Course", "IELTS Preparation", "Travel Phrases Pack"}, names)

	all, err := e.svc.ListAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestCreateProductValidation(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	cases := []struct {
		in  ProductInput
		msg string
	}{
		{ProductInput{Name: "  ", Price: money("1.00")}, "product name required"},
		{ProductInput{Name: strings.Repeat("x", 201), Price: money("1.00")}, "product name too long"},
		{ProductInput{Name: "Slang", Price: money("-0.01")}, "price cannot be negative"},
		{ProductInput{Name: "Slang", Price: money("1.005")}, "price must have at most 2 decimal places"},
	}
	for _, tc := range cases {
		_, err := e.svc.CreateProduct(ctx, tc.in)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr), tc.msg)
		assert.Equal(t, tc.msg, verr.Message)
	}

	p, err := e.svc.CreateProduct(ctx, ProductInput{Name: " Slang ", Price: money("0"), Available: false})
	require.NoError(t, err)
	assert.Equal(t, "Slang", p.Name)
	assert.False(t, p.Available)
}

func TestDeleteProductRestricted(t *testing.T) {
	for name, colocated := range map[string]bool{"partitioned": false, "colocated": true} {
		t.Run(name, func(t *testing.T) {
			reg := storagetest.Partitioned(t)
			if colocated {
				reg = storagetest.Colocated(t)
			}
			e := newEnv(t, reg)
			ctx := context.Background()

			_, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
			require.NoError(t, err)

			err = e.svc.DeleteProduct(ctx, 1)
			var conflict *domain.ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, "product Business English Course is referenced by 1 order items", conflict.Message)
			_, err = e.svc.GetProduct(ctx, 1)
			require.NoError(t, err)

			require.NoError(t, e.svc.DeleteProduct(ctx, 2))
			_, err = e.svc.GetProduct(ctx, 2)
			var nf *domain.NotFoundError
			require.True(t, errors.As(err, &nf))
			require.True(t, errors.As(e.svc.DeleteProduct(ctx, 2), &nf))
		})
	}
}

func TestSetProductAvailability(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	require.NoError(t, e.svc.SetProductAvailability(ctx, 1, false))
	_, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	var nf *domain.NotFoundError
	require.True(t, errors.As(e.svc.SetProductAvailability(ctx, 99, true), &nf))
	_, err = e.svc.UpdateProduct(ctx, 99, ProductInput{Name: "x", Price: money("1")})
	require.True(t, errors.As(err, &nf))
}
