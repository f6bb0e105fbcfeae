package internel

import (
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"fmt"
	"reflect"
	"sync"
)

var (
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
)

// Method 注册目标上一个可调用的方法
type Method struct {
	Name string
	model.RemoteMethod
	//非可补偿方法为nil
	Compensable *model.Compensable

	fn reflect.Value
}

// ParameterTypeNames 持久化到InvocationContext中的参数类型描述
func (m *Method) ParameterTypeNames() []string {
	names := make([]string, len(m.ParameterTypes))
	for i, t := range m.ParameterTypes {
		names[i] = t.String()
	}
	return names
}

type target struct {
	id      string
	methods map[string]*Method
	remote  model.RemoteTarget
}

// RegistryCenter 按稳定的目标ID解析调用目标，重启后恢复任务据此找回confirm/cancel方法
type RegistryCenter struct {
	mux     sync.RWMutex
	targets map[string]*target
}

func NewRegistryCenter() *RegistryCenter {
	return &RegistryCenter{
		targets: make(map[string]*target),
	}
}

// Register 注册本地服务，rcvr上形如 func(ctx, args...) (R, error) 或 func(ctx, args...) error 的导出方法可被调用
func (rc *RegistryCenter) Register(id string, rcvr any, markers map[string]model.Compensable) error {
	if rcvr == nil {
		return fmt.Errorf("%w: nil receiver for target %q", pkg.ErrSystem, id)
	}
	return rc.register(id, localMethods(reflect.ValueOf(rcvr)), nil, markers)
}

// RegisterRemote 注册由传输层实现的远程服务桩
func (rc *RegistryCenter) RegisterRemote(id string, remote model.RemoteTarget, markers map[string]model.Compensable) error {
	if remote == nil {
		return fmt.Errorf("%w: nil remote for target %q", pkg.ErrSystem, id)
	}
	methods := make(map[string]*Method)
	for name, sig := range remote.Methods() {
		methods[name] = &Method{Name: name, RemoteMethod: sig}
	}
	return rc.register(id, methods, remote, markers)
}

func (rc *RegistryCenter) register(id string, methods map[string]*Method, remote model.RemoteTarget, markers map[string]model.Compensable) error {
	if id == "" {
		return fmt.Errorf("%w: empty target id", pkg.ErrSystem)
	}
	for name, marker := range markers {
		if err := checkMarker(id, methods, name, marker); err != nil {
			return err
		}
		marker := marker
		methods[name].Compensable = &marker
	}

	rc.mux.Lock()
	defer rc.mux.Unlock()
	if _, ok := rc.targets[id]; ok {
		return fmt.Errorf("%w: target %q already exists", pkg.ErrSystem, id)
	}
	rc.targets[id] = &target{id: id, methods: methods, remote: remote}
	return nil
}

// confirm/cancel必须存在于同一目标上，且参数类型与try完全一致
func checkMarker(id string, methods map[string]*Method, tryName string, marker model.Compensable) error {
	try, ok := methods[tryName]
	if !ok {
		return fmt.Errorf("%w: compensable method %s.%s not found", pkg.ErrSystem, id, tryName)
	}
	for _, name := range []string{marker.ConfirmMethod, marker.CancelMethod} {
		m, ok := methods[name]
		if !ok {
			return fmt.Errorf("%w: confirm/cancel method %s.%s of %s not found", pkg.ErrSystem, id, name, tryName)
		}
		if !sameTypes(try.ParameterTypes, m.ParameterTypes) {
			return fmt.Errorf("%w: parameter types of %s.%s differ from %s", pkg.ErrSystem, id, name, tryName)
		}
	}
	if marker.Propagation < pkg.REQUIRED || marker.Propagation > pkg.MANDATORY {
		return fmt.Errorf("%w: illegal propagation %d on %s.%s", pkg.ErrSystem, int(marker.Propagation), id, tryName)
	}
	return nil
}

func sameTypes(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// 与net/rpc的suitableMethods相同的做法，不满足签名的方法直接忽略
func localMethods(rcvr reflect.Value) map[string]*Method {
	methods := make(map[string]*Method)
	typ := rcvr.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		mtype := method.Type
		//receiver, ctx
		if mtype.NumIn() < 2 || mtype.In(1) != typeOfContext || mtype.IsVariadic() {
			continue
		}
		var returnType reflect.Type
		switch mtype.NumOut() {
		case 1:
		case 2:
			returnType = mtype.Out(0)
		default:
			continue
		}
		if mtype.Out(mtype.NumOut()-1) != typeOfError {
			continue
		}
		params := make([]reflect.Type, 0, mtype.NumIn()-2)
		for j := 2; j < mtype.NumIn(); j++ {
			params = append(params, mtype.In(j))
		}
		methods[method.Name] = &Method{
			Name:         method.Name,
			RemoteMethod: model.RemoteMethod{ParameterTypes: params, ReturnType: returnType},
			fn:           rcvr.Method(i),
		}
	}
	return methods
}

func (rc *RegistryCenter) getTarget(id string) (*target, error) {
	rc.mux.RLock()
	defer rc.mux.RUnlock()
	t, ok := rc.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: target id:%v does not exist", pkg.ErrSystem, id)
	}
	return t, nil
}

func (rc *RegistryCenter) GetMethod(id, name string) (*Method, error) {
	t, err := rc.getTarget(id)
	if err != nil {
		return nil, err
	}
	m, ok := t.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: method %s.%s does not exist", pkg.ErrSystem, id, name)
	}
	return m, nil
}

// Call 调用目标方法，args与方法参数按位置一一对应
func (rc *RegistryCenter) Call(ctx context.Context, id, name string, args []any) (any, error) {
	t, err := rc.getTarget(id)
	if err != nil {
		return nil, err
	}
	m, ok := t.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: method %s.%s does not exist", pkg.ErrSystem, id, name)
	}
	if len(args) != len(m.ParameterTypes) {
		return nil, fmt.Errorf("%w: %s.%s expects %d arguments, got %d", pkg.ErrSystem, id, name, len(m.ParameterTypes), len(args))
	}
	if t.remote != nil {
		return t.remote.Dispatch(ctx, name, args)
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for i, arg := range args {
		v, err := argValue(arg, m.ParameterTypes[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument #%d: %w", id, name, i, err)
		}
		in = append(in, v)
	}

	out := m.fn.Call(in)
	errv := out[len(out)-1]
	if !errv.IsNil() {
		err = errv.Interface().(error)
	}
	if m.ReturnType == nil {
		return nil, err
	}
	return out[0].Interface(), err
}

func argValue(arg any, typ reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", pkg.ErrSystem, v.Type(), typ)
}
