package twin

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/example/erp/tools/acctest/internal/value"
)

// ErrInvalidFake is returned for a malformed fake collection definition.
var ErrInvalidFake = errors.New("invalid fake definition")

// FakeSpec describes generated records for one collection.
type FakeSpec struct {
	Collection string
	Count      int
	// Fields maps a record field to a generator type, see FakeTypes.
	Fields map[string]string
}

// ParseFakeSpec parses "collection:count:field=type,field=type", for example
// "customers:50:code=uuid,name=company,status=status".
func ParseFakeSpec(s string) (FakeSpec, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return FakeSpec{}, fmt.Errorf("%w: %q: want collection:count[:field=type,...]", ErrInvalidFake, s)
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || count < 0 {
		return FakeSpec{}, fmt.Errorf("%w: %q: count must be a non-negative integer", ErrInvalidFake, s)
	}

	spec := FakeSpec{Collection: strings.TrimSpace(parts[0]), Count: count, Fields: map[string]string{}}
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return spec, nil
	}
	for _, field := range strings.Split(parts[2], ",") {
		name, typ, ok := strings.Cut(field, "=")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" {
			return FakeSpec{}, fmt.Errorf("%w: field %q: want field=type", ErrInvalidFake, field)
		}
		if _, known := fakeFunctions[typ]; !known {
			return FakeSpec{}, fmt.Errorf("%w: field %q: unknown type %q", ErrInvalidFake, name, typ)
		}
		spec.Fields[name] = typ
	}
	return spec, nil
}

// Fake appends spec.Count generated records to the collection. Ids continue
// after the largest numeric id already stored. A zero seed picks a random one.
func (s *Store) Fake(spec FakeSpec, seed uint64) error {
	for name, typ := range spec.Fields {
		if _, ok := fakeFunctions[typ]; !ok {
			return fmt.Errorf("%w: field %q: unknown type %q", ErrInvalidFake, name, typ)
		}
	}

	faker := gofakeit.New(seed)
	fields := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(spec.Collection)
	next := maxID(s.collections[name]) + 1
	for i := 0; i < spec.Count; i++ {
		r := Record{"id": next}
		for _, field := range fields {
			r[field] = fakeFunctions[spec.Fields[field]](faker)
		}
		s.collections[name] = append(s.collections[name], r)
		next++
	}
	return nil
}

// FakeTypes returns the supported generator types, sorted.
func FakeTypes() []string {
	types := make([]string, 0, len(fakeFunctions))
	for t := range fakeFunctions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func maxID(records []Record) int64 {
	var top int64
	for _, r := range records {
		f, ok := numeric(value.FromJSON(r["id"]))
		if ok && int64(f) > top {
			top = int64(f)
		}
	}
	return top
}

var fakeFunctions = map[string]func(*gofakeit.Faker) any{
	// Person
	"name":      func(f *gofakeit.Faker) any { return f.Name() },
	"firstName": func(f *gofakeit.Faker) any { return f.FirstName() },
	"lastName":  func(f *gofakeit.Faker) any { return f.LastName() },
	"email":     func(f *gofakeit.Faker) any { return f.Email() },
	"phone":     func(f *gofakeit.Faker) any { return f.Phone() },

	// Address
	"street":  func(f *gofakeit.Faker) any { return f.Street() },
	"city":    func(f *gofakeit.Faker) any { return f.City() },
	"state":   func(f *gofakeit.Faker) any { return f.State() },
	"country": func(f *gofakeit.Faker) any { return f.Country() },
	"zipCode": func(f *gofakeit.Faker) any { return f.Zip() },

	// Business
	"company":         func(f *gofakeit.Faker) any { return f.Company() },
	"productName":     func(f *gofakeit.Faker) any { return f.ProductName() },
	"productCategory": func(f *gofakeit.Faker) any { return f.ProductCategory() },
	"currency":        func(f *gofakeit.Faker) any { return f.Currency().Short },
	"price":           func(f *gofakeit.Faker) any { return f.Price(1, 1000) },
	"status": func(f *gofakeit.Faker) any {
		return f.RandomString([]string{"ACTIVE", "INACTIVE", "PENDING"})
	},

	// Identifiers and scalars
	"uuid":     func(f *gofakeit.Faker) any { return f.UUID() },
	"word":     func(f *gofakeit.Faker) any { return f.Word() },
	"sentence": func(f *gofakeit.Faker) any { return f.Sentence(5) },
	"number":   func(f *gofakeit.Faker) any { return int64(f.Number(1, 100)) },
	"bool":     func(f *gofakeit.Faker) any { return f.Bool() },
	"date":     func(f *gofakeit.Faker) any { return f.Date().Format("2006-01-02") },
}
