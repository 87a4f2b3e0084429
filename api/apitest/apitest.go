// Package apitest provides an in-process fake of the storefront backend for
// tests. It serves every endpoint the client packages call, issues
// JWT-shaped access tokens plus an HTTP-only refresh cookie, and lets tests
// expire tokens, inject failures and count requests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RefreshCookie is the name of the HTTP-only refresh cookie.
	RefreshCookie = "refresh_token"

	// AccessTTL is the lifetime encoded in issued access tokens.
	AccessTTL = 15 * time.Minute
)

var signingKey = []byte("apitest-signing-key")

// User is the public user shape returned by /auth/login and /auth/me.
type User struct {
	ID       int64  `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Account is a user plus the password the fake accepts for it.
type Account struct {
	User
	Password string
}

// Product is stored in the backend's row shape. Price is kept as whatever
// JSON value the test supplied so string and comma-decimal prices round-trip.
type Product struct {
	IDProduct   int64  `json:"id_product"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       any    `json:"price"`
	ImageURL    string `json:"image_url"`
	Stock       int    `json:"stock"`
	CategoryID  int64  `json:"id_category_fk"`
	IsActive    int    `json:"is_active"`
}

// Category is stored in the backend's row shape.
type Category struct {
	IDCategory int64  `json:"id_category"`
	Category   string `json:"category"`
}

// OrderItem is one line of a stored order.
type OrderItem struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice float64
	ImageURL  string
}

// Order is a stored order.
type Order struct {
	ID        int64
	Code      string
	Status    string
	EntryDate time.Time
	UpdatedAt time.Time
	Customer  map[string]string
	Notes     string
	Items     []OrderItem
}

// Hit is one request observed by the fake.
type Hit struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string

	// TraceID is the W3C trace id propagated by the client, or empty.
	TraceID string
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	// AdminRoles lists the roles allowed on /admin routes.
	AdminRoles []string

	mu         sync.Mutex
	accounts   map[string]Account
	access     map[string]int64 // access token -> user id
	refresh    map[string]int64 // refresh cookie -> user id
	products   []Product
	categories []Category
	orders     []Order
	nextOrder  int64
	nextProd   int64
	failures   map[string][]int
	hits       []Hit
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
// Clients should use APIURL() as their base URL.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		AdminRoles: []string{"Administrador", "Cliente"},
		accounts:   make(map[string]Account),
		access:     make(map[string]int64),
		refresh:    make(map[string]int64),
		failures:   make(map[string][]int),
		nextOrder:  1000,
		nextProd:   1,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.record, s.inject)

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.authenticated(s.handleMe)).Methods(http.MethodGet)

	api.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{code}", s.handleGetOrder).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminOnly)
	admin.HandleFunc("/orders", s.handleAdminOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id:[0-9]+}/status", s.handleAdminOrderStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/products", s.handleAdminProducts).Methods(http.MethodGet)
	admin.HandleFunc("/products", s.handleAdminCreateProduct).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id:[0-9]+}", s.handleAdminUpdateProduct).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id:[0-9]+}", s.handleAdminDeleteProduct).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(otelhttp.NewHandler(r, "apitest", otelhttp.WithPropagators(propagation.TraceContext{})))
	t.Cleanup(s.Close)
	return s
}

// APIURL returns the API base URL ("<server>/api").
func (s *Server) APIURL() string { return s.Server.URL + "/api" }

// AddAccount registers a user that can log in.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.Email)] = a
}

// AddCategory stores a category.
func (s *Server) AddCategory(c Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// AddProduct stores a product. A zero IDProduct is assigned.
func (s *Server) AddProduct(p Product) Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IDProduct == 0 {
		p.IDProduct = s.nextProd
	}
	if p.IDProduct >= s.nextProd {
		s.nextProd = p.IDProduct + 1
	}
	s.products = append(s.products, p)
	return p
}

// AddOrder stores an order. Zero ID, Code, Status and EntryDate are filled.
func (s *Server) AddOrder(o Order) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOrderLocked(o)
}

// Order returns the stored order with id.
func (s *Server) Order(id int64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// Products returns a copy of every stored product.
func (s *Server) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

// ExpireAccessTokens invalidates every issued access token. Refresh cookies
// stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every refresh cookie.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailNext makes the next len(statuses) requests to path (relative to the
// API root, e.g. "/auth/me") fail with the given statuses, in order.
func (s *Server) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

// Hits returns every request seen for method and path (relative to the API
// root). An empty method matches any.
func (s *Server) Hits(method, path string) []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Hit
	for _, h := range s.hits {
		if (method == "" || h.Method == method) && h.Path == path {
			out = append(out, h)
		}
	}
	return out
}

// Count is len(Hits(method, path)).
func (s *Server) Count(method, path string) int { return len(s.Hits(method, path)) }

func apiPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/api")
}

func traceID(r *http.Request) string {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, Hit{
			Method:        r.Method,
			Path:          apiPath(r),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			TraceID:       traceID(r),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := apiPath(r)
		s.mu.Lock()
		queue := s.failures[path]
		status := 0
		if len(queue) > 0 {
			status = queue[0]
			s.failures[path] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) userFor(r *http.Request) (User, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.access[raw]
	if !ok {
		return User{}, false
	}
	for _, a := range s.accounts {
		if a.ID == id {
			return a.User, true
		}
	}
	return User{}, false
}

func (s *Server) authenticated(h func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Token inválido o expirado")
			return
		}
		h(w, r, u)
	}
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Token inválido o expirado")
			return
		}
		if !slices.Contains(s.AdminRoles, u.Role) {
			writeError(w, http.StatusForbidden, "No autorizado")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueAccess(userID int64) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTTL)),
	})
	signed, err := tok.SignedString(signingKey)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.access[signed] = userID
	s.mu.Unlock()
	return signed, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Email y contraseña son requeridos")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(body.Email)]
	s.mu.Unlock()
	if !ok || acct.Password != body.Password {
		writeError(w, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}

	token, err := s.issueAccess(acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt := uuid.NewString()
	s.mu.Lock()
	s.refresh[rt] = acct.ID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: rt, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": token, "user": acct.User})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Sin refresh token")
		return
	}
	s.mu.Lock()
	id, ok := s.refresh[ck.Value]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Refresh token inválido")
		return
	}
	token, err := s.issueAccess(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refresh, ck.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, u User) {
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if p.IsActive != 0 {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]Category{}, s.categories...))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Customer map[string]string `json:"customer"`
		Items    []struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if len(body.Items) == 0 || body.Customer["name"] == "" {
		writeError(w, http.StatusBadRequest, "Datos incompletos")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o := Order{Customer: body.Customer, Notes: body.Customer["notes"]}
	for _, it := range body.Items {
		idx := slices.IndexFunc(s.products, func(p Product) bool { return p.IDProduct == it.ProductID })
		if idx < 0 || it.Quantity < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Producto %d inválido", it.ProductID))
			return
		}
		p := s.products[idx]
		o.Items = append(o.Items, OrderItem{
			ProductID: p.IDProduct,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: priceOf(p.Price),
			ImageURL:  p.ImageURL,
		})
	}
	o = s.addOrderLocked(o)
	writeJSON(w, http.StatusCreated, map[string]any{"code": o.Code, "id_order": o.ID})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if strings.EqualFold(o.Code, code) {
			writeJSON(w, http.StatusOK, orderDetail(o))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Pedido no encontrado")
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]map[string]any, 0, len(s.orders))
	for _, o := range s.orders {
		var total float64
		for _, it := range o.Items {
			total += it.UnitPrice * float64(it.Quantity)
		}
		rows = append(rows, map[string]any{
			"id_order":       o.ID,
			"code":           o.Code,
			"status":         o.Status,
			"customer_name":  o.Customer["name"],
			"customer_phone": o.Customer["phone"],
			"total":          total,
			"entry_date":     o.EntryDate.Format(time.RFC3339),
			"updated_at":     o.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAdminOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "Estado requerido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = body.Status
			s.orders[i].UpdatedAt = time.Now()
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Orden no encontrada")
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]Product{}, s.products...))
}

func (s *Server) handleAdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "Nombre requerido")
		return
	}
	s.mu.Lock()
	p.IDProduct = s.nextProd
	s.nextProd++
	s.products = append(s.products, p)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].IDProduct == id {
			p.IDProduct = id
			s.products[i] = p
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Producto no encontrado")
}

func (s *Server) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].IDProduct == id {
			s.products[i].IsActive = 0
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Producto no encontrado")
}

func (s *Server) addOrderLocked(o Order) Order {
	if o.ID == 0 {
		o.ID = s.nextOrder
		s.nextOrder++
	}
	if o.Code == "" {
		o.Code = fmt.Sprintf("MS-%d", o.ID)
	}
	if o.Status == "" {
		o.Status = "RECEIVED"
	}
	if o.EntryDate.IsZero() {
		o.EntryDate = time.Now().UTC().Truncate(time.Second)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.EntryDate
	}
	s.orders = append(s.orders, o)
	return o
}

// orderDetail renders an order the way the public lookup endpoint does:
// guest details under "anonimal_order_details" and lines under
// "order_items" with product_* field names.
func orderDetail(o Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"id_product_fk": it.ProductID,
			"product_name":  it.Name,
			"quantity":      it.Quantity,
			"unit_price":    it.UnitPrice,
			"image_url":     it.ImageURL,
		})
	}
	return map[string]any{
		"code":                   o.Code,
		"status":                 o.Status,
		"entry_date":             o.EntryDate.Format(time.RFC3339),
		"anonimal_order_details": o.Customer,
		"order_items":            items,
		"notes":                  o.Notes,
	}
}

func priceOf(v any) float64 {
	switch p := v.(type) {
	case float64:
		return p
	case int:
		return float64(p)
	case string:
		f, _ := strconv.ParseFloat(strings.Replace(p, ",", ".", 1), 64)
		return f
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
