package twin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `{
  "customers": [
    {"id": 1, "code": "C-1", "status": "ACTIVE"},
    {"id": 2, "code": "C-2", "status": "INACTIVE"},
    {"id": 3, "code": "C-1", "status": "PENDING"}
  ]
}`

func newTestServer(t *testing.T, opts ...Option) (*Store, *httptest.Server) {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.LoadState([]byte(seed)))
	ts := httptest.NewServer(NewServer(store, opts...))
	t.Cleanup(ts.Close)
	return store, ts
}

func doJSON(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return resp.StatusCode, out
}

func searchBody(key string, val any) map[string]any {
	return map[string]any{
		"pager":   map[string]any{"pageNumber": 0, "pageSize": 1},
		"sorters": []any{map[string]any{"direction": "DESC", "property": "id"}},
		"filters": []any{map[string]any{
			"filterType": "CONDITION", "joinType": "NONE", "operatorType": "EQUALS",
			"key": key, "value": val, "dataType": "string",
		}},
	}
}

func TestSearch(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/customers/search", "", searchBody("code", "C-1"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, json.Number("2"), body["totalElements"])

	content := body["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, json.Number("3"), content[0].(map[string]any)["id"], "newest id first")
}

func TestSearch_NumericFilterMatchesNumber(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/customers/search", "", searchBody("id", 2))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, json.Number("1"), body["totalElements"])
}

func TestSearch_NoMatch(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/customers/search", "", searchBody("code", "nope"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, json.Number("0"), body["totalElements"])
	assert.Empty(t, body["content"])
}

func TestUpdate(t *testing.T) {
	store, ts := newTestServer(t)

	status, body := doJSON(t, http.MethodPut, ts.URL+"/customers", "", map[string]any{
		"data": []any{map[string]any{"id": 2, "status": "ACTIVE"}},
	})
	require.Equal(t, http.StatusOK, status)

	data := body["data"].([]any)
	require.Len(t, data, 1)
	updated := data[0].(map[string]any)
	assert.Equal(t, "ACTIVE", updated["status"])
	assert.Equal(t, "C-2", updated["code"])

	rec, ok := store.Get("customers", int64(2))
	require.True(t, ok)
	assert.Equal(t, "ACTIVE", rec["status"])
}

func TestUpdate_NotFound(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, http.MethodPut, ts.URL+"/customers", "", map[string]any{
		"data": []any{map[string]any{"id": 99, "status": "ACTIVE"}},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"].(map[string]any)["message"], "not found")
}

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, WithToken("secret"), WithPrefix("/api"))

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/customers/search", "", searchBody("code", "C-1"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/customers/search", "secret", searchBody("code", "C-1"))
	assert.Equal(t, http.StatusOK, status)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetAndDelete(t *testing.T) {
	store, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/customers/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/customers/1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := store.Get("customers", int64(1))
	assert.False(t, ok)
}

func TestStore_SearchRandomized(t *testing.T) {
	f := gofakeit.New(7)
	store := NewStore()

	statuses := []string{"ACTIVE", "INACTIVE", "PENDING"}
	want := map[string]int{}
	for i := 1; i <= 100; i++ {
		status := statuses[f.Number(0, len(statuses)-1)]
		want[status]++
		store.Put("orders", Record{"id": json.Number(fmt.Sprint(i)), "status": status, "customer": f.Company()})
	}

	for _, status := range statuses {
		page, total := store.Search("orders", []Condition{{Key: "status", Value: status}}, 0, 1)
		assert.Equal(t, want[status], total, status)
		if total > 0 {
			require.Len(t, page, 1)
			assert.Equal(t, status, page[0]["status"])
		}
	}

	all, total := store.Search("orders", nil, 0, 0)
	assert.Equal(t, 100, total)
	require.Len(t, all, 100)
	assert.Equal(t, json.Number("100"), all[0]["id"])
	assert.Equal(t, json.Number("1"), all[99]["id"])
}

func TestStore_LoadStateInvalid(t *testing.T) {
	assert.Error(t, NewStore().LoadState([]byte(`[1,2]`)))
}

func TestParseFakeSpec(t *testing.T) {
	spec, err := ParseFakeSpec("Customers:3:code=uuid, status=status")
	require.NoError(t, err)
	assert.Equal(t, FakeSpec{
		Collection: "Customers",
		Count:      3,
		Fields:     map[string]string{"code": "uuid", "status": "status"},
	}, spec)

	spec, err = ParseFakeSpec("orders:10")
	require.NoError(t, err)
	assert.Equal(t, 10, spec.Count)
	assert.Empty(t, spec.Fields)

	for _, bad := range []string{"orders", ":3", "orders:x", "orders:-1", "orders:2:code", "orders:2:code=nope"} {
		_, err := ParseFakeSpec(bad)
		assert.ErrorIs(t, err, ErrInvalidFake, bad)
	}
}

func TestStore_Fake(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.LoadState([]byte(seed)))

	spec := FakeSpec{Collection: "customers", Count: 5, Fields: map[string]string{"code": "uuid", "status": "status"}}
	require.NoError(t, store.Fake(spec, 42))

	records := store.Snapshot()["customers"]
	require.Len(t, records, 8)
	for i, r := range records[3:] {
		assert.Equal(t, int64(4+i), r["id"])
		assert.NotEmpty(t, r["code"])
		assert.Contains(t, []any{"ACTIVE", "INACTIVE", "PENDING"}, r["status"])
	}

	page, total := store.Search("customers", nil, 0, 1)
	assert.Equal(t, 8, total)
	assert.Equal(t, int64(8), page[0]["id"])
}

func TestStore_FakeIsDeterministicForSeed(t *testing.T) {
	spec := FakeSpec{Collection: "items", Count: 3, Fields: map[string]string{"name": "productName"}}
	a, b := NewStore(), NewStore()
	require.NoError(t, a.Fake(spec, 9))
	require.NoError(t, b.Fake(spec, 9))
	assert.Equal(t, a.Snapshot(), b.Snapshot())

	spec.Fields["name"] = "nope"
	assert.ErrorIs(t, a.Fake(spec, 9), ErrInvalidFake)
}

func TestFakeTypes(t *testing.T) {
	types := FakeTypes()
	assert.Contains(t, types, "uuid")
	assert.IsIncreasing(t, types)
}
