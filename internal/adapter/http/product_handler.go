package http

import (
	"net/http"
	"strconv"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	catalog *usecase.Catalog
}

func NewProductHandler(catalog *usecase.Catalog) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// GET /v1/products?q=&category=&status=&minPrice=&maxPrice=&sort=&limit=&offset=
func (h *ProductHandler) List(c *gin.Context) {
	f := usecase.ProductFilter{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Status:   domain.ProductStatus(c.Query("status")),
		Sort:     usecase.ProductSort(c.Query("sort")),
	}
	var err error
	if f.MinPrice, err = optDecimal(c, "minPrice"); err != nil {
		return
	}
	if f.MaxPrice, err = optDecimal(c, "maxPrice"); err != nil {
		return
	}
	if f.Limit, f.Offset, err = paging(c); err != nil {
		return
	}

	items, err := h.catalog.SearchProducts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type createProductReq struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Active        *bool           `json:"active"`
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), usecase.CreateProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		Inactive:      req.Active != nil && !*req.Active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type updateProductReq struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Active      *bool            `json:"active"`
}

func (h *ProductHandler) Update(c *gin.Context) {
	var req updateProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), usecase.UpdateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Active:      req.Active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type setStockReq struct {
	StockQuantity *int `json:"stockQuantity" binding:"required"`
}

func (h *ProductHandler) SetStock(c *gin.Context) {
	var req setStockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.catalog.SetStock(c.Request.Context(), c.Param("id"), *req.StockQuantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) Delete(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// optDecimal parses an optional query value; on failure it has already written a 400.
func optDecimal(c *gin.Context, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		badRequest(c, key+" must be a decimal number")
		return nil, err
	}
	return &d, nil
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "limit must be an integer")
			return 0, 0, err
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "offset must be an integer")
			return 0, 0, err
		}
	}
	return limit, offset, nil
}
