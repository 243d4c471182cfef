package errortype

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errors"
)

func TestErrorType_Identity(t *testing.T) {
	a := New("http", "connectivity", &Connectivity)
	b := New("HTTP", "CONNECTIVITY", nil)

	assert.True(t, a.Equal(b), "equality ignores parent and case")
	assert.Equal(t, "HTTP:CONNECTIVITY", a.String())
	assert.False(t, a.IsZero())
	assert.True(t, ErrorType{}.IsZero())
	assert.Equal(t, "", ErrorType{}.String())
}

func TestErrorType_Hierarchy(t *testing.T) {
	repo := NewRepository()
	httpConn, err := repo.Register("HTTP", "CONNECTIVITY", Connectivity)
	require.NoError(t, err)

	assert.True(t, httpConn.IsA(httpConn))
	assert.True(t, httpConn.IsA(Connectivity))
	assert.True(t, httpConn.IsA(Any))
	assert.False(t, httpConn.IsA(Security))
	assert.False(t, Critical.IsA(Any), "critical types sit outside ANY")
	assert.True(t, Overload.IsA(Critical))

	ancestors := httpConn.Ancestors()
	require.Len(t, ancestors, 2)
	assert.True(t, ancestors[0].Equal(Connectivity))
	assert.True(t, ancestors[1].Equal(Any))

	parent, ok := httpConn.Parent()
	require.True(t, ok)
	assert.True(t, parent.Equal(Connectivity))

	_, ok = Any.Parent()
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		ns      string
		id      string
		wantErr bool
	}{
		{"HTTP:TIMEOUT", "HTTP", "TIMEOUT", false},
		{"http:timeout", "HTTP", "TIMEOUT", false},
		{"CONNECTIVITY", "CORE", "CONNECTIVITY", false},
		{"", "", "", true},
		{":TIMEOUT", "", "", true},
		{"HTTP:", "", "", true},
		{"A:B:C", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ns, id, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrInvalidErrorType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ns, ns)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestRepository(t *testing.T) {
	repo := NewRepository()

	for _, core := range CoreTypes() {
		got, ok := repo.LookupString(core.String())
		require.True(t, ok, core.String())
		assert.True(t, got.Equal(core))
	}

	t.Run("register under unknown parent fails", func(t *testing.T) {
		_, err := repo.RegisterString("APP:BROKEN", "APP:MISSING")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrUnknownErrorType))
	})

	t.Run("register defaults to ANY", func(t *testing.T) {
		typ, err := repo.RegisterString("APP:RETRYABLE", "")
		require.NoError(t, err)
		parent, ok := typ.Parent()
		require.True(t, ok)
		assert.True(t, parent.Equal(Any))
	})

	t.Run("re-registering the same declaration is idempotent", func(t *testing.T) {
		first, err := repo.RegisterString("DB:CONNECTIVITY", "CONNECTIVITY")
		require.NoError(t, err)
		second, err := repo.RegisterString("DB:CONNECTIVITY", "CORE:CONNECTIVITY")
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})

	t.Run("conflicting parent is rejected", func(t *testing.T) {
		_, err := repo.RegisterString("DB:CONNECTIVITY", "SECURITY")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrDuplicateErrorType))
	})

	assert.Contains(t, repo.Namespaces(), "APP")
	assert.Contains(t, repo.Namespaces(), "CORE")

	types := repo.Types()
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1].String(), types[i].String())
	}
}

type timeoutErr struct{ op string }

func (e *timeoutErr) Error() string { return e.op + " timed out" }

type declaredErr struct{}

func (declaredErr) Error() string        { return "declared" }
func (declaredErr) ErrorType() ErrorType { return Transformation }

func TestCatalog_Lookup(t *testing.T) {
	repo := NewRepository()
	httpConn, err := repo.RegisterString("HTTP:CONNECTIVITY", "CONNECTIVITY")
	require.NoError(t, err)
	httpTimeout, err := repo.RegisterString("HTTP:TIMEOUT", "TIMEOUT")
	require.NoError(t, err)

	errRefused := stderrors.New("connection refused")

	catalog := NewCatalog(repo, WithClassFallback())
	require.NoError(t, catalog.BindError("http", errRefused, httpConn))
	require.NoError(t, BindType[*timeoutErr](catalog, "http", httpTimeout))
	require.NoError(t, BindType[*timeoutErr](catalog, "", Timeout))

	httpID := component.Identifier{Namespace: "http", Name: "request"}
	dbID := component.Identifier{Namespace: "db", Name: "select"}

	tests := []struct {
		name string
		id   component.Identifier
		err  error
		want ErrorType
	}{
		{"nil error", httpID, nil, Unknown},
		{"component sentinel", httpID, errRefused, httpConn},
		{"sentinel outside its namespace", dbID, errRefused, Unknown},
		{"wrapped sentinel is not unwrapped", httpID, fmt.Errorf("dial: %w", errRefused), Unknown},
		{"component type binding", httpID, &timeoutErr{op: "read"}, httpTimeout},
		{"global type binding", dbID, &timeoutErr{op: "query"}, Timeout},
		{"declared type", dbID, declaredErr{}, Transformation},
		{"context deadline", dbID, context.DeadlineExceeded, Timeout},
		{"class fallback transient", dbID, errors.WrapTransient(errRefused, "c", "m", "a"), Connectivity},
		{"class fallback invalid", dbID, errors.WrapInvalid(errRefused, "c", "m", "a"), Validation},
		{"class fallback fatal", dbID, errors.WrapFatal(errRefused, "c", "m", "a"), Critical},
		{"unclassified", dbID, stderrors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.LookupComponentErrorType(tt.id, tt.err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}

	assert.True(t, catalog.LookupErrorType(errRefused).IsUnknown(), "component bindings need a component")
}

func TestCatalog_BindValidation(t *testing.T) {
	catalog := NewCatalog(nil)

	err := catalog.Bind("", nil, Connectivity)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = catalog.BindError("", stderrors.New("x"), New("NOPE", "UNDECLARED", nil))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownErrorType))

	err = catalog.BindError("", nil, Connectivity)
	require.Error(t, err)
}

func TestCatalog_WithoutClassFallback(t *testing.T) {
	catalog := NewCatalog(NewRepository())
	got := catalog.LookupErrorType(errors.WrapTransient(stderrors.New("x"), "c", "m", "a"))
	assert.True(t, got.IsUnknown())
}

func TestCatalog_BindUsesDeclaredParent(t *testing.T) {
	repo := NewRepository()
	_, err := repo.Register("HTTP", "TIMEOUT", Timeout)
	require.NoError(t, err)
	catalog := NewCatalog(repo)

	sentinel := stderrors.New("read deadline")
	require.NoError(t, catalog.BindError("", sentinel, New("HTTP", "TIMEOUT", nil)))

	got := catalog.LookupErrorType(sentinel)
	assert.Equal(t, "HTTP:TIMEOUT", got.String())
	assert.True(t, got.IsA(Timeout))
	assert.True(t, got.IsA(Connectivity))
}
