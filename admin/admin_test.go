package admin_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ggoodman/storefront-go/admin"
	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/api/apitest"
	"github.com/ggoodman/storefront-go/orders"
	"github.com/ggoodman/storefront-go/session"
	"github.com/ggoodman/storefront-go/storage/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var staff = apitest.Account{
	User:     apitest.User{ID: 1, Role: "Administrador", Username: "staff", Email: "staff@example.com"},
	Password: "hunter2",
}

type fixture struct {
	srv      *apitest.Server
	mgr      *session.Manager
	orders   *admin.Orders
	products *admin.Products
}

func newFixture(t *testing.T, login bool) *fixture {
	t.Helper()

	srv := apitest.New(t)
	srv.AddAccount(staff)

	client, err := api.New(srv.APIURL())
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	store, err := memory.New(0)
	if err != nil {
		t.Fatalf("memory.New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mgr, err := session.New(client, store)
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	mgr.Boot(t.Context())
	if login {
		if _, err := mgr.Login(t.Context(), staff.Email, staff.Password); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	}

	guard := admin.WithGuard(mgr.AuthorizeAdmin)
	return &fixture{
		srv:      srv,
		mgr:      mgr,
		orders:   admin.NewOrders(client, guard),
		products: admin.NewProducts(client, guard),
	}
}

func TestGuardRejectsAnonymous(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.orders.List(t.Context()); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
	}
	if err := f.products.Deactivate(t.Context(), 1); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
	}
	if want, got := 0, f.srv.Count(http.MethodGet, admin.OrdersPath); want != got {
		t.Fatalf("Unexpected admin calls: want %d, got %d", want, got)
	}
}

func TestGuardRejectsOtherRoles(t *testing.T) {
	f := newFixture(t, false)
	f.srv.AddAccount(apitest.Account{
		User:     apitest.User{ID: 2, Role: "Repartidor", Username: "rider", Email: "rider@example.com"},
		Password: "pw",
	})
	if _, err := f.mgr.Login(t.Context(), "rider@example.com", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := f.orders.List(t.Context()); !errors.Is(err, session.ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}
}

func TestOrdersListAndAdvance(t *testing.T) {
	f := newFixture(t, true)
	stored := f.srv.AddOrder(apitest.Order{
		Customer: map[string]string{"name": "Luis", "phone": "555"},
		Items:    []apitest.OrderItem{{ProductID: 1, Name: "Taco", Quantity: 3, UnitPrice: 10}},
	})

	rows, err := f.orders.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if want, got := 1, len(rows); want != got {
		t.Fatalf("Unexpected row count: want %d, got %d", want, got)
	}
	row := rows[0]
	if want, got := stored.Code, row.Code; want != got {
		t.Fatalf("Unexpected code: want %q, got %q", want, got)
	}
	if want, got := "Luis", row.CustomerName; want != got {
		t.Fatalf("Unexpected customer: want %q, got %q", want, got)
	}
	if !row.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("Unexpected total: want 30, got %s", row.Total)
	}

	row, err = f.orders.Advance(t.Context(), row)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if want, got := orders.StatusConfirmed, row.Status; want != got {
		t.Fatalf("Unexpected row status: want %v, got %v", want, got)
	}
	got, _ := f.srv.Order(stored.ID)
	if want := string(orders.StatusConfirmed); want != got.Status {
		t.Fatalf("Unexpected stored status: want %v, got %v", want, got.Status)
	}

	row, err = f.orders.Cancel(t.Context(), row)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if want, got := orders.StatusCancelled, row.Status; want != got {
		t.Fatalf("Unexpected row status: want %v, got %v", want, got)
	}
}

func TestTerminalOrdersDoNotMove(t *testing.T) {
	f := newFixture(t, true)

	for _, status := range []orders.Status{orders.StatusDelivered, orders.StatusCancelled} {
		row := admin.OrderRow{ID: 1000, Code: "MS-1000", Status: status}
		if _, err := f.orders.Advance(t.Context(), row); !errors.Is(err, admin.ErrTerminal) {
			t.Fatalf("Advance(%s): expected ErrTerminal, got %v", status, err)
		}
		if _, err := f.orders.Cancel(t.Context(), row); !errors.Is(err, admin.ErrTerminal) {
			t.Fatalf("Cancel(%s): expected ErrTerminal, got %v", status, err)
		}
	}
	if want, got := 0, f.srv.Count(http.MethodPatch, admin.OrdersPath+"/1000/status"); want != got {
		t.Fatalf("Unexpected status calls: want %d, got %d", want, got)
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	f := newFixture(t, true)

	if err := f.orders.SetStatus(t.Context(), 1000, "LOST"); err == nil {
		t.Fatalf("Expected an error for an unknown status")
	}
}

func TestAdminCallsSurviveExpiredToken(t *testing.T) {
	f := newFixture(t, true)
	f.srv.AddOrder(apitest.Order{})
	f.srv.ExpireAccessTokens()

	rows, err := f.orders.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if want, got := 1, len(rows); want != got {
		t.Fatalf("Unexpected row count: want %d, got %d", want, got)
	}
	if want, got := 1, f.srv.Count(http.MethodPost, session.RefreshPath); want != got {
		t.Fatalf("Unexpected refresh calls: want %d, got %d", want, got)
	}
}

func TestOrdersListNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	rows, err := admin.NewOrders(client).List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("Expected an empty list, got %#v", rows)
	}
}

func TestFilterOrders(t *testing.T) {
	rows := []admin.OrderRow{
		{ID: 1001, Code: "MS-1001", Status: orders.StatusReceived},
		{ID: 1002, Code: "MS-1002", Status: orders.StatusDelivered},
		{ID: 2001, Code: "XY-77", Status: orders.StatusReceived},
	}

	tests := []struct {
		name   string
		status string
		search string
		want   []int64
	}{
		{name: "all", status: admin.StatusAll, want: []int64{1001, 1002, 2001}},
		{name: "empty status", want: []int64{1001, 1002, 2001}},
		{name: "by status", status: "RECEIVED", want: []int64{1001, 2001}},
		{name: "by code", search: " ms-100 ", want: []int64{1001, 1002}},
		{name: "by id", search: "2001", want: []int64{2001}},
		{name: "status and search", status: "DELIVERED", search: "ms", want: []int64{1002}},
		{name: "no match", search: "zz", want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []int64{}
			for _, r := range admin.FilterOrders(rows, tt.status, tt.search) {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Unexpected ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProductsList(t *testing.T) {
	f := newFixture(t, true)
	f.srv.AddCategory(apitest.Category{IDCategory: 1, Category: "Bebidas"})
	f.srv.AddProduct(apitest.Product{Name: "Agua", Price: "12,50", Stock: 3, CategoryID: 1, IsActive: 1})
	f.srv.AddProduct(apitest.Product{Name: "Misterio", Price: 5, CategoryID: 9, IsActive: 0})

	rows, err := f.products.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if want, got := 2, len(rows); want != got {
		t.Fatalf("Unexpected row count: want %d, got %d", want, got)
	}
	if want, got := "Bebidas", rows[0].CategoryName; want != got {
		t.Fatalf("Unexpected category: want %q, got %q", want, got)
	}
	if !rows[0].Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("Unexpected price: want 12.5, got %s", rows[0].Price)
	}
	if !rows[0].Active || rows[1].Active {
		t.Fatalf("Unexpected active flags: %v, %v", rows[0].Active, rows[1].Active)
	}
	if want, got := admin.UncategorizedName, rows[1].CategoryName; want != got {
		t.Fatalf("Unexpected category: want %q, got %q", want, got)
	}
}

func TestProductsLifecycle(t *testing.T) {
	f := newFixture(t, true)

	in := admin.ProductInput{
		Name:       "  Horchata ",
		Price:      decimal.RequireFromString("25.5"),
		Stock:      10,
		CategoryID: 2,
		Active:     true,
	}
	created, err := f.products.Create(t.Context(), in)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created == nil {
		t.Fatalf("Expected the created product to be returned")
	}
	if want, got := "Horchata", created.Name; want != got {
		t.Fatalf("Unexpected name: want %q, got %q", want, got)
	}
	if !created.Price.Equal(in.Price) {
		t.Fatalf("Unexpected price: want %s, got %s", in.Price, created.Price)
	}

	in.Stock = 4
	if err := f.products.Update(t.Context(), created.ID, in); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if want, got := 4, f.srv.Products()[0].Stock; want != got {
		t.Fatalf("Unexpected stock: want %d, got %d", want, got)
	}

	if err := f.products.Deactivate(t.Context(), created.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if want, got := 0, f.srv.Products()[0].IsActive; want != got {
		t.Fatalf("Unexpected is_active: want %d, got %d", want, got)
	}

	if err := f.products.Update(t.Context(), 999, in); !api.IsNotFound(err) {
		t.Fatalf("Expected not found, got %v", err)
	}
}

func TestProductInputValidate(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		name string
		in   admin.ProductInput
	}{
		{name: "blank name", in: admin.ProductInput{Name: "  "}},
		{name: "negative price", in: admin.ProductInput{Name: "x", Price: decimal.NewFromInt(-1)}},
		{name: "negative stock", in: admin.ProductInput{Name: "x", Stock: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.products.Create(t.Context(), tt.in); !errors.Is(err, admin.ErrInvalidProduct) {
				t.Fatalf("Expected ErrInvalidProduct, got %v", err)
			}
		})
	}
	if want, got := 0, f.srv.Count(http.MethodPost, admin.ProductsPath); want != got {
		t.Fatalf("Unexpected create calls: want %d, got %d", want, got)
	}
}

func TestSearch(t *testing.T) {
	rows := admin.Join(nil, nil)
	if want, got := 0, len(admin.Search(rows, "x")); want != got {
		t.Fatalf("Unexpected results: want %d, got %d", want, got)
	}

	rows = []admin.ProductRow{
		{CategoryName: "Bebidas"},
		{CategoryName: "Postres"},
	}
	rows[0].Name = "Agua"
	rows[1].Name = "Flan de agua"

	if want, got := 2, len(admin.Search(rows, "AGUA")); want != got {
		t.Fatalf("Unexpected name matches: want %d, got %d", want, got)
	}
	if want, got := 1, len(admin.Search(rows, "postre")); want != got {
		t.Fatalf("Unexpected category matches: want %d, got %d", want, got)
	}
	if want, got := 2, len(admin.Search(rows, "")); want != got {
		t.Fatalf("Unexpected blank matches: want %d, got %d", want, got)
	}
}

func TestOrderRowTimestamps(t *testing.T) {
	f := newFixture(t, true)
	f.srv.AddOrder(apitest.Order{})

	rows, err := f.orders.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	row, err := f.orders.Advance(t.Context(), rows[0])
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, row.UpdatedAt); err != nil {
		t.Fatalf("Unexpected updated_at %q: %v", row.UpdatedAt, err)
	}
}
