package repositorycache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
)

// TestUser represents a test entity
type TestUser struct {
	bun.BaseModel `bun:"table:users"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `json:"name"`
}

var errNotFound = errors.New("record not found")

// mockRepository is an in-memory repository that tracks method calls
type mockRepository struct {
	mu    sync.Mutex
	calls []string
	users map[string]TestUser
	fail  error
}

func newMockRepository(users ...TestUser) *mockRepository {
	m := &mockRepository{users: make(map[string]TestUser)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// Helper method to record method calls
func (m *mockRepository) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

// Helper method to count recorded calls of one method
func (m *mockRepository) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRepository) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository) sorted() []TestUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TestUser, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRepository) put(u TestUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *mockRepository) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *mockRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("Get")
	if m.fail != nil {
		return TestUser{}, m.fail
	}
	users := m.sorted()
	if len(users) == 0 {
		return TestUser{}, errNotFound
	}
	return users[0], nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("GetByID")
	if m.fail != nil {
		return TestUser{}, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return TestUser{}, errNotFound
	}
	return u, nil
}

func (m *mockRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]TestUser, int, error) {
	m.recordCall("List")
	if m.fail != nil {
		return nil, 0, m.fail
	}
	users := m.sorted()
	return users, len(users), nil
}

func (m *mockRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	if m.fail != nil {
		return 0, m.fail
	}
	return len(m.sorted()), nil
}

func (m *mockRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("GetByIdentifier")
	for _, u := range m.sorted() {
		if u.Name == identifier {
			return u, nil
		}
	}
	return TestUser{}, errNotFound
}

func (m *mockRepository) Create(ctx context.Context, record TestUser, criteria ...repository.InsertCriteria) (TestUser, error) {
	m.recordCall("Create")
	m.put(record)
	return record, nil
}

func (m *mockRepository) CreateTx(ctx context.Context, tx bun.IDB, record TestUser, criteria ...repository.InsertCriteria) (TestUser, error) {
	m.recordCall("CreateTx")
	m.put(record)
	return record, nil
}

func (m *mockRepository) CreateMany(ctx context.Context, records []TestUser, criteria ...repository.InsertCriteria) ([]TestUser, error) {
	m.recordCall("CreateMany")
	for _, r := range records {
		m.put(r)
	}
	return records, nil
}

func (m *mockRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []TestUser, criteria ...repository.InsertCriteria) ([]TestUser, error) {
	m.recordCall("CreateManyTx")
	return m.CreateMany(ctx, records)
}

func (m *mockRepository) GetOrCreate(ctx context.Context, record TestUser) (TestUser, error) {
	m.recordCall("GetOrCreate")
	m.put(record)
	return record, nil
}

func (m *mockRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record TestUser) (TestUser, error) {
	m.recordCall("GetOrCreateTx")
	m.put(record)
	return record, nil
}

func (m *mockRepository) Update(ctx context.Context, record TestUser, criteria ...repository.UpdateCriteria) (TestUser, error) {
	m.recordCall("Update")
	if m.fail != nil {
		return TestUser{}, m.fail
	}
	m.put(record)
	return record, nil
}

func (m *mockRepository) UpdateTx(ctx context.Context, tx bun.IDB, record TestUser, criteria ...repository.UpdateCriteria) (TestUser, error) {
	m.recordCall("UpdateTx")
	m.put(record)
	return record, nil
}

func (m *mockRepository) UpdateMany(ctx context.Context, records []TestUser, criteria ...repository.UpdateCriteria) ([]TestUser, error) {
	m.recordCall("UpdateMany")
	for _, r := range records {
		m.put(r)
	}
	return records, nil
}

func (m *mockRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []TestUser, criteria ...repository.UpdateCriteria) ([]TestUser, error) {
	m.recordCall("UpdateManyTx")
	for _, r := range records {
		m.put(r)
	}
	return records, nil
}

func (m *mockRepository) Upsert(ctx context.Context, record TestUser, criteria ...repository.UpdateCriteria) (TestUser, error) {
	m.recordCall("Upsert")
	m.put(record)
	return record, nil
}

func (m *mockRepository) UpsertTx(ctx context.Context, tx bun.IDB, record TestUser, criteria ...repository.UpdateCriteria) (TestUser, error) {
	m.recordCall("UpsertTx")
	m.put(record)
	return record, nil
}

func (m *mockRepository) UpsertMany(ctx context.Context, records []TestUser, criteria ...repository.UpdateCriteria) ([]TestUser, error) {
	m.recordCall("UpsertMany")
	for _, r := range records {
		m.put(r)
	}
	return records, nil
}

func (m *mockRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []TestUser, criteria ...repository.UpdateCriteria) ([]TestUser, error) {
	m.recordCall("UpsertManyTx")
	for _, r := range records {
		m.put(r)
	}
	return records, nil
}

func (m *mockRepository) Delete(ctx context.Context, record TestUser) error {
	m.recordCall("Delete")
	m.remove(record.ID)
	return nil
}

func (m *mockRepository) DeleteTx(ctx context.Context, tx bun.IDB, record TestUser) error {
	m.recordCall("DeleteTx")
	m.remove(record.ID)
	return nil
}

func (m *mockRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteMany")
	return nil
}

func (m *mockRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteManyTx")
	return nil
}

func (m *mockRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteWhere")
	m.mu.Lock()
	m.users = make(map[string]TestUser)
	m.mu.Unlock()
	return nil
}

func (m *mockRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteWhereTx")
	return nil
}

func (m *mockRepository) ForceDelete(ctx context.Context, record TestUser) error {
	m.recordCall("ForceDelete")
	m.remove(record.ID)
	return nil
}

func (m *mockRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record TestUser) error {
	m.recordCall("ForceDeleteTx")
	m.remove(record.ID)
	return nil
}

func (m *mockRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("GetTx")
	return TestUser{}, nil
}

func (m *mockRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("GetByIDTx")
	return TestUser{ID: id}, nil
}

func (m *mockRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]TestUser, int, error) {
	m.recordCall("ListTx")
	return nil, 0, nil
}

func (m *mockRepository) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("CountTx")
	return 0, nil
}

func (m *mockRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (TestUser, error) {
	m.recordCall("GetByIdentifierTx")
	return TestUser{}, nil
}

// Other methods that panic to ensure they're not called during our tests
func (m *mockRepository) Raw(ctx context.Context, sql string, args ...any) ([]TestUser, error) {
	panic("Raw not implemented in mock - should not be called in cache tests")
}

func (m *mockRepository) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]TestUser, error) {
	panic("RawTx not implemented in mock")
}

func (m *mockRepository) Handlers() repository.ModelHandlers[TestUser] {
	panic("Handlers not implemented in mock")
}

func newTestEntityCache(t *testing.T) *cache.EntityCache {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.Namespace = "repo_test"
	cfg.Logger = zap.NewNop()
	ec, err := cache.New(cfg)
	if err != nil {
		t.Fatalf("cache.New() error: %v", err)
	}
	return ec
}

func newCachedUsers(t *testing.T, users ...TestUser) (*CachedRepository[TestUser], *mockRepository) {
	t.Helper()
	base := newMockRepository(users...)
	cached, err := New[TestUser](base, newTestEntityCache(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return cached, base
}

func TestNew(t *testing.T) {
	cached, base := newCachedUsers(t)

	if cached.base != base {
		t.Error("base repository not stored correctly")
	}
	if cached.Entity() != "users" {
		t.Errorf("expected entity users, got %q", cached.Entity())
	}
	if cached.Prefix() != "repository.users" {
		t.Errorf("unexpected prefix %q", cached.Prefix())
	}

	want := []string{
		"repository.users.count",
		"repository.users.get",
		"repository.users.get_by_id",
		"repository.users.get_by_identifier",
		"repository.users.list",
	}
	if got := cached.cache.Functions(); !reflect.DeepEqual(got, want) {
		t.Errorf("registered functions = %v, want %v", got, want)
	}

	if _, err := New[TestUser](nil, newTestEntityCache(t)); err == nil {
		t.Error("expected error without base repository")
	}
	if _, err := New[TestUser](base, nil); err == nil {
		t.Error("expected error without cache")
	}
}

func TestNew_Options(t *testing.T) {
	base := newMockRepository()
	cached, err := New[TestUser](base, newTestEntityCache(t), WithPrefix("accounts"), WithTTL(0), WithIDKey(cache.Field("name")))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cached.Prefix() != "accounts" {
		t.Errorf("unexpected prefix %q", cached.Prefix())
	}

	refs, err := cached.cache.EntityRefs(TestUser{ID: "1", Name: "ada"}, cache.WithModel[TestUser](), cache.WithIDKey(cache.Field("name")))
	if err != nil || len(refs) != 1 || refs[0].ID != "ada" {
		t.Errorf("unexpected refs %v, %v", refs, err)
	}
}

// Test cache hit scenarios for read methods
func TestCachedReadMethods_CacheHit(t *testing.T) {
	users := []TestUser{{ID: "1", Name: "Ada"}, {ID: "2", Name: "Grace"}}

	tests := []struct {
		name      string
		method    string
		operation func(context.Context, *CachedRepository[TestUser]) error
	}{
		{
			name:   "Get",
			method: "Get",
			operation: func(ctx context.Context, c *CachedRepository[TestUser]) error {
				_, err := c.Get(ctx)
				return err
			},
		},
		{
			name:   "GetByID",
			method: "GetByID",
			operation: func(ctx context.Context, c *CachedRepository[TestUser]) error {
				u, err := c.GetByID(ctx, "2")
				if err == nil && u.Name != "Grace" {
					return errors.New("unexpected record " + u.Name)
				}
				return err
			},
		},
		{
			name:   "List",
			method: "List",
			operation: func(ctx context.Context, c *CachedRepository[TestUser]) error {
				records, total, err := c.List(ctx)
				if err == nil && (len(records) != 2 || total != 2) {
					return errors.New("unexpected list result")
				}
				return err
			},
		},
		{
			name:   "Count",
			method: "Count",
			operation: func(ctx context.Context, c *CachedRepository[TestUser]) error {
				n, err := c.Count(ctx)
				if err == nil && n != 2 {
					return errors.New("unexpected count")
				}
				return err
			},
		},
		{
			name:   "GetByIdentifier",
			method: "GetByIdentifier",
			operation: func(ctx context.Context, c *CachedRepository[TestUser]) error {
				_, err := c.GetByIdentifier(ctx, "Ada")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cached, base := newCachedUsers(t, users...)

			for i := 0; i < 3; i++ {
				if err := tt.operation(ctx, cached); err != nil {
					t.Fatalf("call %d failed: %v", i, err)
				}
			}
			if n := base.count(tt.method); n != 1 {
				t.Errorf("expected base %s called once, got %d", tt.method, n)
			}
		})
	}
}

func TestCachedReadMethods_CriteriaRequireQueryKey(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"})

	active := func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where("active = ?", true) }

	_, _, _ = cached.List(ctx, active)
	_, _, _ = cached.List(ctx, active)
	if n := base.count("List"); n != 2 {
		t.Errorf("criteria without a query key must not be cached, got %d calls", n)
	}

	keyed := WithQueryKey(ctx, "active")
	_, _, _ = cached.List(keyed, active)
	_, _, _ = cached.List(keyed, active)
	if n := base.count("List"); n != 3 {
		t.Errorf("keyed criteria should be cached, got %d calls", n)
	}

	_, _ = cached.Count(WithQueryKey(ctx, "other"), active)
	_, _ = cached.Count(WithQueryKey(ctx, "other"), active)
	if n := base.count("Count"); n != 1 {
		t.Errorf("keyed count should be cached, got %d calls", n)
	}
}

func TestCachedReadMethods_ErrorPropagation(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t)
	base.fail = errors.New("database unavailable")

	if _, err := cached.GetByID(ctx, "1"); !errors.Is(err, base.fail) {
		t.Errorf("expected base error, got %v", err)
	}
	if _, _, err := cached.List(ctx); !errors.Is(err, base.fail) {
		t.Errorf("expected base error, got %v", err)
	}

	base.fail = nil
	base.put(TestUser{ID: "1", Name: "Ada"})
	if u, err := cached.GetByID(ctx, "1"); err != nil || u.Name != "Ada" {
		t.Errorf("errors must not be cached, got %+v, %v", u, err)
	}
	if n := base.count("GetByID"); n != 2 {
		t.Errorf("expected 2 GetByID calls, got %d", n)
	}
}

func TestWriteMethods_Update(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"}, TestUser{ID: "2", Name: "Grace"})

	_, _ = cached.GetByID(ctx, "1")
	_, _ = cached.GetByID(ctx, "2")
	_, _, _ = cached.List(ctx)
	_, _ = cached.Count(ctx)

	if _, err := cached.Update(ctx, TestUser{ID: "1", Name: "Ada Lovelace"}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	u, _ := cached.GetByID(ctx, "1")
	if u.Name != "Ada Lovelace" {
		t.Errorf("expected fresh record after update, got %+v", u)
	}
	_, _ = cached.GetByID(ctx, "2")
	records, _, _ := cached.List(ctx)
	_, _ = cached.Count(ctx)

	if n := base.count("GetByID"); n != 3 {
		t.Errorf("only the updated record should reload, GetByID calls=%d", n)
	}
	if n := base.count("List"); n != 2 || records[0].Name != "Ada Lovelace" {
		t.Errorf("list containing the record should reload, calls=%d records=%v", n, records)
	}
	if n := base.count("Count"); n != 2 {
		t.Errorf("counts should reload after update, calls=%d", n)
	}
}

func TestWriteMethods_UpdateFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"})

	_, _ = cached.GetByID(ctx, "1")
	base.fail = errors.New("constraint violation")
	if _, err := cached.Update(ctx, TestUser{ID: "1", Name: "x"}); err == nil {
		t.Fatal("expected update error")
	}
	base.fail = nil

	_, _ = cached.GetByID(ctx, "1")
	if n := base.count("GetByID"); n != 1 {
		t.Errorf("failed writes must not invalidate, GetByID calls=%d", n)
	}
}

func TestWriteMethods_Delete(t *testing.T) {
	ctx := context.Background()
	cached, _ := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"}, TestUser{ID: "2", Name: "Grace"})

	_, _ = cached.GetByID(ctx, "1")
	_, _, _ = cached.List(ctx)
	_, _ = cached.Count(ctx)

	if err := cached.Delete(ctx, TestUser{ID: "1"}); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := cached.GetByID(ctx, "1"); !errors.Is(err, errNotFound) {
		t.Errorf("deleted record must not be served from cache, got %v", err)
	}
	records, total, _ := cached.List(ctx)
	if len(records) != 1 || total != 1 {
		t.Errorf("expected list without the deleted record, got %v", records)
	}
	if n, _ := cached.Count(ctx); n != 1 {
		t.Errorf("expected count 1 after delete, got %d", n)
	}
}

func TestWriteMethods_CreateKeepsRecordReads(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"})

	_, _ = cached.GetByID(ctx, "1")
	_, _, _ = cached.List(ctx)
	_, _ = cached.Count(ctx)

	if _, err := cached.Create(ctx, TestUser{ID: "2", Name: "Grace"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, _ = cached.GetByID(ctx, "1")
	records, _, _ := cached.List(ctx)
	n, _ := cached.Count(ctx)

	if base.count("GetByID") != 1 {
		t.Error("record reads should survive a create")
	}
	if len(records) != 2 || n != 2 {
		t.Errorf("lists and counts should see the new record, got %d records, count %d", len(records), n)
	}
}

func TestWriteMethods_BulkAndCriteria(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t, TestUser{ID: "1", Name: "Ada"}, TestUser{ID: "2", Name: "Grace"})

	_, _ = cached.GetByID(ctx, "1")
	_, _ = cached.GetByID(ctx, "2")

	if _, err := cached.UpdateMany(ctx, []TestUser{{ID: "1", Name: "A"}, {ID: "2", Name: "G"}}); err != nil {
		t.Fatalf("UpdateMany() error: %v", err)
	}
	_, _ = cached.GetByID(ctx, "1")
	_, _ = cached.GetByID(ctx, "2")
	if n := base.count("GetByID"); n != 4 {
		t.Errorf("bulk update should invalidate every record, calls=%d", n)
	}

	_, _ = cached.GetByIdentifier(ctx, "A")
	if err := cached.DeleteWhere(ctx); err != nil {
		t.Fatalf("DeleteWhere() error: %v", err)
	}
	if _, err := cached.GetByIdentifier(ctx, "A"); !errors.Is(err, errNotFound) {
		t.Errorf("criteria deletes should drop every cached read, got %v", err)
	}
	if _, err := cached.GetByID(ctx, "1"); !errors.Is(err, errNotFound) {
		t.Errorf("criteria deletes should drop every cached read, got %v", err)
	}
}

func TestWriteMethodsDelegation(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t)
	var tx bun.IDB

	rec := TestUser{ID: "9", Name: "x"}
	_, _ = cached.CreateTx(ctx, tx, rec)
	_, _ = cached.CreateMany(ctx, []TestUser{rec})
	_, _ = cached.CreateManyTx(ctx, tx, []TestUser{rec})
	_, _ = cached.GetOrCreate(ctx, rec)
	_, _ = cached.GetOrCreateTx(ctx, tx, rec)
	_, _ = cached.UpdateTx(ctx, tx, rec)
	_, _ = cached.UpdateManyTx(ctx, tx, []TestUser{rec})
	_, _ = cached.Upsert(ctx, rec)
	_, _ = cached.UpsertTx(ctx, tx, rec)
	_, _ = cached.UpsertMany(ctx, []TestUser{rec})
	_, _ = cached.UpsertManyTx(ctx, tx, []TestUser{rec})
	_ = cached.DeleteTx(ctx, tx, rec)
	_ = cached.ForceDelete(ctx, rec)
	_ = cached.ForceDeleteTx(ctx, tx, rec)
	_ = cached.DeleteMany(ctx)
	_ = cached.DeleteManyTx(ctx, tx)
	_ = cached.DeleteWhereTx(ctx, tx)

	want := []string{
		"CreateTx", "CreateMany", "CreateManyTx", "CreateMany", "GetOrCreate", "GetOrCreateTx",
		"UpdateTx", "UpdateManyTx", "Upsert", "UpsertTx", "UpsertMany", "UpsertManyTx",
		"DeleteTx", "ForceDelete", "ForceDeleteTx", "DeleteMany", "DeleteManyTx", "DeleteWhereTx",
	}
	if got := base.getCalls(); !reflect.DeepEqual(got, want) {
		t.Errorf("delegated calls = %v, want %v", got, want)
	}
}

func TestTransactionReadsBypassCache(t *testing.T) {
	ctx := context.Background()
	cached, base := newCachedUsers(t)
	var tx bun.IDB

	for i := 0; i < 2; i++ {
		_, _ = cached.GetTx(ctx, tx)
		_, _ = cached.GetByIDTx(ctx, tx, "1")
		_, _, _ = cached.ListTx(ctx, tx)
		_, _ = cached.CountTx(ctx, tx)
		_, _ = cached.GetByIdentifierTx(ctx, tx, "x")
	}

	for _, method := range []string{"GetTx", "GetByIDTx", "ListTx", "CountTx", "GetByIdentifierTx"} {
		if n := base.count(method); n != 2 {
			t.Errorf("%s should reach the base every time, got %d", method, n)
		}
	}
}

func TestRepositoryInterfaceSatisfaction(t *testing.T) {
	cached, _ := newCachedUsers(t)

	var repo repository.Repository[TestUser] = cached
	if repo == nil {
		t.Error("CachedRepository does not satisfy Repository interface")
	}
}

// Test fixture-based scenarios using test support utilities
func TestCacheScenarios_WithFixtures(t *testing.T) {
	ctx := context.Background()

	var fixture struct {
		Users []TestUser `json:"users"`
	}
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("users.json"), &fixture)

	cached, base := newCachedUsers(t, fixture.Users...)

	records1, total1, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("First List call failed: %v", err)
	}
	records2, total2, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("Second List call failed: %v", err)
	}

	if total1 != len(fixture.Users) || total2 != total1 {
		t.Errorf("unexpected totals %d and %d", total1, total2)
	}
	if !reflect.DeepEqual(records1, records2) {
		t.Error("Results from cache hit should match results from cache miss")
	}
	if n := base.count("List"); n != 1 {
		t.Errorf("Expected a single repository call, got %d", n)
	}

	last := fixture.Users[len(fixture.Users)-1]
	if _, err := cached.Update(ctx, TestUser{ID: last.ID, Name: "renamed"}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	records3, _, _ := cached.List(ctx)
	found := false
	for _, r := range records3 {
		if r.ID == last.ID && r.Name == "renamed" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the renamed record in %v", records3)
	}
}
