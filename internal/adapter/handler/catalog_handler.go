package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type productRequest struct {
	Name             string            `json:"name" validate:"required,min=3,max=100"`
	Description      string            `json:"description" validate:"max=500"`
	Price            decimal.Decimal   `json:"price"`
	OldPrice         *decimal.Decimal  `json:"oldPrice"`
	Stock            int               `json:"stock" validate:"gte=0"`
	CategoryID       string            `json:"categoryId" validate:"required"`
	Rating           float64           `json:"rating" validate:"gte=0,lte=5"`
	IsNew            bool              `json:"isNew"`
	IsPromo          bool              `json:"isPromo"`
	Specifications   map[string]string `json:"specifications"`
	Image            string            `json:"image"`
	AdditionalImages []string          `json:"additionalImages"`
}

func (req productRequest) toDomain(id string) *domain.Product {
	return &domain.Product{
		ID:               id,
		Name:             req.Name,
		Description:      req.Description,
		Price:            req.Price,
		OldPrice:         req.OldPrice,
		Stock:            req.Stock,
		CategoryID:       req.CategoryID,
		Rating:           req.Rating,
		IsNew:            req.IsNew,
		IsPromo:          req.IsPromo,
		Specifications:   req.Specifications,
		Image:            req.Image,
		AdditionalImages: req.AdditionalImages,
	}
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type productPage struct {
	Items  []domain.Product `json:"items"`
	Total  int64            `json:"total"`
	Limit  int64            `json:"limit"`
	Offset int64            `json:"offset"`
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	f := domain.ProductFilter{
		CategoryID: q.Get("category"),
		Query:      q.Get("q"),
	}

	for name, dst := range map[string]**bool{"isNew": &f.IsNew, "isPromo": &f.IsPromo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, domain.InvalidInput("%s must be a boolean", name)
		}
		*dst = &v
	}

	for name, dst := range map[string]*int64{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return f, domain.InvalidInput("%s must be a non-negative integer", name)
		}
		*dst = v
	}
	return f, nil
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request, categoryID string) {
	filter, err := parseProductFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if categoryID != "" {
		if _, err := h.catalog.GetCategory(r.Context(), categoryID); err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.CategoryID = categoryID
	}

	products, total, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productPage{Items: products, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, "")
}

func (h *HTTPHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, chi.URLParam(r, "id"))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.GetProductDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	product := req.toDomain("")
	if err := h.catalog.CreateProduct(r.Context(), product); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	product := req.toDomain(chi.URLParam(r, "id"))
	if err := h.catalog.UpdateProduct(r.Context(), product); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *HTTPHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.catalog.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	category := &domain.Category{Name: req.Name, Description: req.Description, Image: req.Image}
	if err := h.catalog.CreateCategory(r.Context(), category); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	category := &domain.Category{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	}
	if err := h.catalog.UpdateCategory(r.Context(), category); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
