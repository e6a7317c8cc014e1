package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
)

type fakeUsers map[int]*models.User

func (f fakeUsers) GetUser(ctx context.Context, id int) (*models.User, error) {
	if user, ok := f[id]; ok {
		return user, nil
	}
	return nil, models.NewNotFoundError("user", id)
}

func newRouter(users UserLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(users))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/open", ok)
	r.GET("/session", RequireSession(), ok)
	r.GET("/manager", RequireManagerOrAdmin(), ok)
	r.GET("/admin", RequireAdmin(), ok)
	return r
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func get(r http.Handler, path string, header http.Header) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestAuthMiddleware_AnonymousAndInvalid(t *testing.T) {
	r := newRouter(fakeUsers{})

	if code := get(r, "/open", nil); code != http.StatusOK {
		t.Fatalf("anonymous open route: expected 200, got %d", code)
	}
	if code := get(r, "/session", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous session route: expected 401, got %d", code)
	}
	if code := get(r, "/open", bearer("not-a-jwt")); code != http.StatusOK {
		t.Fatalf("garbage token on open route: expected 200, got %d", code)
	}
	if code := get(r, "/session", bearer("not-a-jwt")); code != http.StatusUnauthorized {
		t.Fatalf("garbage token on session route: expected 401, got %d", code)
	}
}

func TestAuthMiddleware_UnknownUserRejected(t *testing.T) {
	r := newRouter(fakeUsers{})
	token := tokenFor(t, &models.User{ID: 42, Username: "ghost", Role: models.UserRoleAdmin})
	if code := get(r, "/session", bearer(token)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", code)
	}
	if code := get(r, "/open", bearer(token)); code != http.StatusOK {
		t.Fatalf("deleted user on open route: expected 200, got %d", code)
	}
}

func TestRoleGuards(t *testing.T) {
	users := fakeUsers{
		1: {ID: 1, Username: "clerk", Role: models.UserRoleUser},
		2: {ID: 2, Username: "boss", Role: models.UserRoleManager},
		3: {ID: 3, Username: "root", Role: models.UserRoleAdmin},
	}
	r := newRouter(users)

	cases := []struct {
		user    int
		path    string
		expects int
	}{
		{1, "/session", http.StatusOK},
		{1, "/manager", http.StatusForbidden},
		{1, "/admin", http.StatusForbidden},
		{2, "/manager", http.StatusOK},
		{2, "/admin", http.StatusForbidden},
		{3, "/manager", http.StatusOK},
		{3, "/admin", http.StatusOK},
	}
	for _, tc := range cases {
		code := get(r, tc.path, bearer(tokenFor(t, users[tc.user])))
		if code != tc.expects {
			t.Fatalf("user %d %s: expected %d, got %d", tc.user, tc.path, tc.expects, code)
		}
	}
}

func TestRoleGuards_UseCurrentRoleNotTokenRole(t *testing.T) {
	users := fakeUsers{2: {ID: 2, Username: "boss", Role: models.UserRoleManager}}
	r := newRouter(users)
	token := tokenFor(t, users[2])

	users[2] = &models.User{ID: 2, Username: "boss", Role: models.UserRoleUser}
	if code := get(r, "/manager", bearer(token)); code != http.StatusForbidden {
		t.Fatalf("demoted manager: expected 403, got %d", code)
	}
}

func TestBearerToken_Sources(t *testing.T) {
	users := fakeUsers{1: {ID: 1, Username: "clerk", Role: models.UserRoleUser}}
	r := newRouter(users)
	token := tokenFor(t, users[1])

	if code := get(r, "/session", http.Header{"Token": {token}}); code != http.StatusOK {
		t.Fatalf("token header: expected 200, got %d", code)
	}
	if code := get(r, "/session", http.Header{"Cookie": {TokenCookieName + "=" + token}}); code != http.StatusOK {
		t.Fatalf("token cookie: expected 200, got %d", code)
	}
	if code := get(r, "/session", http.Header{"Authorization": {"Basic " + token}}); code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: expected 401, got %d", code)
	}
}

type countingCatalog struct {
	*models.MemoryStore
	mu    sync.Mutex
	calls int
}

func (c *countingCatalog) GetItemsByIds(ctx context.Context, ids []int) ([]*models.Item, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.MemoryStore.GetItemsByIds(ctx, ids)
}

func TestLoaders_BatchAndResolveNames(t *testing.T) {
	ctx := context.Background()
	store := &countingCatalog{MemoryStore: models.NewMemoryStore()}
	location := &models.Location{Name: "Shelf"}
	if err := store.CreateLocation(ctx, location); err != nil {
		t.Fatalf("create location: %v", err)
	}
	var ids []int
	for _, name := range []string{"Drill", "Saw"} {
		item := &models.Item{Name: name}
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatalf("create item: %v", err)
		}
		ids = append(ids, item.ID)
	}

	if For(ctx) != nil {
		t.Fatalf("expected no loaders outside the middleware")
	}
	ctx = context.WithValue(ctx, loadersKey, NewLoaders(store))
	loaders := For(ctx)

	names, err := loaders.ItemNames(ctx, append(ids, 999))
	if err != nil {
		t.Fatalf("item names: %v", err)
	}
	if len(names) != 2 || names[ids[0]] != "Drill" || names[ids[1]] != "Saw" {
		t.Fatalf("unexpected names: %v", names)
	}
	if store.calls != 1 {
		t.Fatalf("expected one batched query, got %d", store.calls)
	}

	item, err := GetItem(ctx, ids[0])
	if err != nil || item == nil || item.Name != "Drill" {
		t.Fatalf("cached item load: %v %v", item, err)
	}
	if store.calls != 1 {
		t.Fatalf("expected cached load, got %d queries", store.calls)
	}

	loc, err := GetLocation(ctx, location.ID)
	if err != nil || loc == nil || loc.Name != "Shelf" {
		t.Fatalf("location load: %v %v", loc, err)
	}
	missing, err := GetLocation(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("unknown location should load as nil, got %v %v", missing, err)
	}
}
