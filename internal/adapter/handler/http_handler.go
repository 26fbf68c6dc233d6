package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/adapter/upload"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const maxBodyBytes = 1 << 20

type Services struct {
	Catalog *service.CatalogService
	Carts   *service.CartService
	Orders  *service.OrderService
	Auth    *service.AuthService
	Users   *service.UserService
}

type HTTPHandler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	orders   *service.OrderService
	auth     *service.AuthService
	users    *service.UserService
	files    port.FileStorage
	metrics  *ServerMetrics
	validate *validator.Validate
}

func NewHTTPHandler(svc Services, files port.FileStorage, metrics *ServerMetrics) *HTTPHandler {
	return &HTTPHandler{
		catalog:  svc.Catalog,
		carts:    svc.Carts,
		orders:   svc.Orders,
		auth:     svc.Auth,
		users:    svc.Users,
		files:    files,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes builds the REST API. uploadDir, when set, is served under /uploads/.
func (h *HTTPHandler) Routes(uploadDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(h.metrics.Middleware, logRequests)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", h.metrics.Handler())
	if uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}

	admin := requireRole(domain.RoleAdmin, h)
	signedIn := requireRole(domain.RoleUser, h)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(signedIn).Post("/logout", h.Logout)
			r.With(signedIn).Get("/me", h.Me)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)
			r.With(admin).Post("/", h.CreateProduct)
			r.With(admin).Put("/{id}", h.UpdateProduct)
			r.With(admin).Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Get("/{id}", h.GetCategory)
			r.Get("/{id}/products", h.ListCategoryProducts)
			r.With(admin).Post("/", h.CreateCategory)
			r.With(admin).Put("/{id}", h.UpdateCategory)
			r.With(admin).Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{productId}", h.UpdateCartItem)
			r.Delete("/items/{productId}", h.RemoveCartItem)
		})

		r.With(signedIn).Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListMyOrders)
			r.Get("/{id}", h.GetOrder)
		})

		r.With(admin).Route("/admin/orders", func(r chi.Router) {
			r.Get("/", h.ListAllOrders)
			r.Patch("/{id}/status", h.TransitionOrderStatus)
		})

		r.With(signedIn).Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
			r.Get("/{id}/orders", h.ListUserOrders)
			r.Get("/{id}/addresses", h.ListAddresses)
			r.Post("/{id}/addresses", h.AddAddress)
			r.Put("/{id}/addresses/{addressId}", h.UpdateAddress)
			r.Delete("/{id}/addresses/{addressId}", h.DeleteAddress)
		})

		r.With(admin).Route("/upload", func(r chi.Router) {
			r.Post("/image", h.UploadImage)
			r.Post("/images", h.UploadImages)
		})
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *HTTPHandler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "quantity" {
			return fmt.Errorf("%w: quantity must be an integer", domain.ErrInvalidQuantity)
		}
		return domain.InvalidInput("invalid request body: %v", err)
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return domain.InvalidInput("%s", strings.Join(fields, "; "))
		}
		return domain.InvalidInput("%v", err)
	}
	return nil
}

type errorResponse struct {
	Error    string               `json:"error"`
	Code     string               `json:"code"`
	Problems []domain.ItemProblem `json:"problems,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: an OrderValidationError also matches the causes it carries.
var errorMappings = []errorMapping{
	{domain.ErrOrderValidationFailed, http.StatusConflict, "ORDER_VALIDATION_FAILED"},
	{domain.ErrStockExceeded, http.StatusConflict, "STOCK_EXCEEDED"},
	{domain.ErrProductUnavailable, http.StatusConflict, "PRODUCT_UNAVAILABLE"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
	{domain.ErrEmptyCart, http.StatusBadRequest, "EMPTY_CART"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{domain.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{domain.ErrCategoryNotFound, http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{domain.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{domain.ErrAddressNotFound, http.StatusNotFound, "ADDRESS_NOT_FOUND"},
	{domain.ErrCartItemNotFound, http.StatusNotFound, "CART_ITEM_NOT_FOUND"},
	{domain.ErrCategoryInUse, http.StatusConflict, "CATEGORY_IN_USE"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "CONCURRENT_UPDATE"},
	{domain.ErrDuplicateRequest, http.StatusConflict, "DUPLICATE_REQUEST"},
	{domain.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{upload.ErrTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{upload.ErrUnsupportedType, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE"},
}

func mapErrorToStatusCode(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapErrorToStatusCode(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		resp.Error = "internal error"
	}

	var verr *domain.OrderValidationError
	if errors.As(err, &verr) {
		resp.Problems = verr.Problems
	}

	writeJSON(w, status, resp)
}
