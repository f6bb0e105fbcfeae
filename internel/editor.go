package internel

import (
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"fmt"
	"reflect"
	"sync"
)

var typeOfTransactionContext = reflect.TypeOf((*pkg.TransactionContext)(nil))

// EditorRegistry 按稳定ID管理事务上下文编辑器
type EditorRegistry struct {
	mux     sync.RWMutex
	editors map[string]model.TransactionContextEditor
}

// NewEditorRegistry 预置default与null两种编辑器
func NewEditorRegistry() *EditorRegistry {
	return &EditorRegistry{
		editors: map[string]model.TransactionContextEditor{
			model.DefaultEditor: DefaultTransactionContextEditor{},
			model.NullEditor:    NullTransactionContextEditor{},
		},
	}
}

func (r *EditorRegistry) Register(id string, editor model.TransactionContextEditor) error {
	if id == "" || editor == nil {
		return fmt.Errorf("%w: invalid editor %q", pkg.ErrSystem, id)
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.editors[id]; ok {
		return fmt.Errorf("%w: editor %q already exists", pkg.ErrSystem, id)
	}
	r.editors[id] = editor
	return nil
}

func (r *EditorRegistry) Get(id string) (model.TransactionContextEditor, error) {
	if id == "" {
		id = model.DefaultEditor
	}
	r.mux.RLock()
	defer r.mux.RUnlock()
	editor, ok := r.editors[id]
	if !ok {
		return nil, fmt.Errorf("%w: editor %q does not exist", pkg.ErrSystem, id)
	}
	return editor, nil
}

// DefaultTransactionContextEditor 读写类型为*pkg.TransactionContext的参数
type DefaultTransactionContextEditor struct{}

func (DefaultTransactionContextEditor) Get(_, _ string, parameterTypes []reflect.Type, args []any) *pkg.TransactionContext {
	i := contextIndex(parameterTypes, args)
	if i < 0 {
		return nil
	}
	tc, _ := args[i].(*pkg.TransactionContext)
	return tc
}

func (DefaultTransactionContextEditor) Set(tc *pkg.TransactionContext, _, _ string, parameterTypes []reflect.Type, args []any) {
	if i := contextIndex(parameterTypes, args); i >= 0 {
		args[i] = tc
	}
}

func contextIndex(parameterTypes []reflect.Type, args []any) int {
	for i, t := range parameterTypes {
		if t == typeOfTransactionContext && i < len(args) {
			return i
		}
	}
	return -1
}

// NullTransactionContextEditor 不携带事务上下文
type NullTransactionContextEditor struct{}

func (NullTransactionContextEditor) Get(_, _ string, _ []reflect.Type, _ []any) *pkg.TransactionContext {
	return nil
}

func (NullTransactionContextEditor) Set(_ *pkg.TransactionContext, _, _ string, _ []reflect.Type, _ []any) {
}
