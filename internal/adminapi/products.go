package adminapi

import (
	"net/http"

	"github.com/flasheng/flasheng/internal/order"
	"github.com/flasheng/flasheng/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type productPayload struct {
	Name      string          `json:"name" validate:"required,min=1,max=200"`
	Price     decimal.Decimal `json:"price"`
	Available *bool           `json:"available"`
}

func (p productPayload) input() order.ProductInput {
	available := true
	if p.Available != nil {
		available = *p.Available
	}
	return order.ProductInput{Name: p.Name, Price: p.Price, Available: available}
}

type availabilityPayload struct {
	Available *bool `json:"available" validate:"required"`
}

// registerProductRoutes registers catalog endpoints under the orders group
func registerProductRoutes() {
	webserver.ApiGET("/orders/products", listProducts)
	webserver.ApiGET("/orders/products/:id", getProduct)
	webserver.ApiPOST("/orders/products", createProduct)
	webserver.ApiPUT("/orders/products/:id", updateProduct)
	webserver.ApiPATCH("/orders/products/:id/availability", setProductAvailability)
	webserver.ApiDELETE("/orders/products/:id", deleteProduct)
}

// listProducts orderable products, or every product with all=true
func listProducts(c echo.Context) error {
	svc := GetAppContext(c).OrderService()
	ctx := c.Request().Context()
	if c.QueryParam("all") == "true" {
		rows, err := svc.ListAllProducts(ctx)
		if err != nil {
			return failFromError(c, err)
		}
		return ok(c, rows)
	}
	rows, err := svc.ListProducts(ctx)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, rows)
}

func getProduct(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	p, err := GetAppContext(c).OrderService().GetProduct(c.Request().Context(), id)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, p)
}

func createProduct(c echo.Context) error {
	var payload productPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	p, err := GetAppContext(c).OrderService().CreateProduct(c.Request().Context(), payload.input())
	if err != nil {
		return failFromError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func updateProduct(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload productPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	p, err := GetAppContext(c).OrderService().UpdateProduct(c.Request().Context(), id, payload.input())
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, p)
}

func setProductAvailability(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload availabilityPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	if err := GetAppContext(c).OrderService().SetProductAvailability(c.Request().Context(), id, *payload.Available); err != nil {
		return failFromError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func deleteProduct(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetAppContext(c).OrderService().DeleteProduct(c.Request().Context(), id); err != nil {
		return failFromError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
