// Package dwarfindexmock contains a hand-maintained gomock double for
// dwarfindex.Resolver (go:generate mockgen -destination=resolver_mock.go
// -package=dwarfindexmock github.com/orizon-lang/dwarfidx/internal/dwarfindex Resolver).
package dwarfindexmock

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockResolver is a mock of the dwarfindex.Resolver interface.
type MockResolver struct {
	ctrl     *gomock.Controller
	recorder *MockResolverMockRecorder
}

// MockResolverMockRecorder is the mock recorder for MockResolver.
type MockResolverMockRecorder struct {
	mock *MockResolver
}

// NewMockResolver creates a new mock instance.
func NewMockResolver(ctrl *gomock.Controller) *MockResolver {
	mock := &MockResolver{ctrl: ctrl}
	mock.recorder = &MockResolverMockRecorder{mock}

	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockResolver) EXPECT() *MockResolverMockRecorder {
	return m.recorder
}

// File mocks base method.
func (m *MockResolver) File(path string, data []byte) (any, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "File", path, data)
	ret0, _ := ret[0].(any)
	ret1, _ := ret[1].(error)

	return ret0, ret1
}

// File indicates an expected call of File.
func (mr *MockResolverMockRecorder) File(path, data any) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "File", reflect.TypeOf((*MockResolver)(nil).File), path, data)
}

// CompilationUnit mocks base method.
func (m *MockResolver) CompilationUnit(file any, cuOffset uint64) (any, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "CompilationUnit", file, cuOffset)
	ret0, _ := ret[0].(any)
	ret1, _ := ret[1].(error)

	return ret0, ret1
}

// CompilationUnit indicates an expected call of CompilationUnit.
func (mr *MockResolverMockRecorder) CompilationUnit(file, cuOffset any) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CompilationUnit", reflect.TypeOf((*MockResolver)(nil).CompilationUnit), file, cuOffset)
}

// DIE mocks base method.
func (m *MockResolver) DIE(cu any, dieOffset uint64) (any, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "DIE", cu, dieOffset)
	ret0, _ := ret[0].(any)
	ret1, _ := ret[1].(error)

	return ret0, ret1
}

// DIE indicates an expected call of DIE.
func (mr *MockResolverMockRecorder) DIE(cu, dieOffset any) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DIE", reflect.TypeOf((*MockResolver)(nil).DIE), cu, dieOffset)
}
