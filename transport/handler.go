package transport

import (
	"TCCTransaction/log"
	"TCCTransaction/model"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
)

// Invoker 由TransactionManager实现
type Invoker interface {
	Signature(target, method string) (model.RemoteMethod, error)
	Invoke(ctx context.Context, target, method string, args ...any) (any, error)
}

type Handler struct {
	invoker Invoker
}

// NewHandler 按方法签名解码参数后经Invoke调用，参数中的事务上下文使本端成为PROVIDER
func NewHandler(invoker Invoker) *Handler {
	return &Handler{invoker: invoker}
}

// Register 挂载到mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(InvokePath, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, invokeResponse{Error: "method not allowed"})
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, invokeResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	sig, err := h.invoker.Signature(req.Target, req.Method)
	if err != nil {
		writeJSON(w, http.StatusNotFound, invokeResponse{Error: err.Error()})
		return
	}
	args, err := decodeArgs(req.Args, sig.ParameterTypes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, invokeResponse{Error: err.Error()})
		return
	}

	ret, err := h.invoker.Invoke(r.Context(), req.Target, req.Method, args...)
	if err != nil {
		log.WarnContextf(r.Context(), "transport: invoke %s.%s err: %v", req.Target, req.Method, err)
		writeJSON(w, http.StatusUnprocessableEntity, invokeResponse{Error: err.Error()})
		return
	}

	result, err := json.Marshal(ret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, invokeResponse{Error: fmt.Sprintf("encode result: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Result: result})
}

func decodeArgs(raw []json.RawMessage, types []reflect.Type) ([]any, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf("expect %d arguments, got %d", len(types), len(raw))
	}
	args := make([]any, len(raw))
	for i, data := range raw {
		ptr := reflect.New(types[i])
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode argument #%d: %v", i, err)
		}
		args[i] = ptr.Elem().Interface()
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, resp invokeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
