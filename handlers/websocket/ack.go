package websocket

import (
	"reflect"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

// ackFunc answers a client acknowledgement with the outcome of an event.
type ackFunc func(err error, body map[string]any)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// splitAck separates a trailing acknowledgement callback from the event
// arguments.
func splitAck(datas []any) (ackFunc, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	ack := toAckFunc(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

func toAckFunc(candidate any) ackFunc {
	switch fn := candidate.(type) {
	case nil:
		return nil
	case socketio.Ack:
		return func(_ error, body map[string]any) { fn([]any{body}, nil) }
	case func(map[string]any):
		return func(_ error, body map[string]any) { fn(body) }
	}

	fn := reflect.ValueOf(candidate)
	if fn.Kind() != reflect.Func {
		return nil
	}
	return func(err error, body map[string]any) {
		in := ackInputs(fn.Type(), err, body)
		if fn.Type().IsVariadic() {
			fn.CallSlice(in)
			return
		}
		fn.Call(in)
	}
}

// ackInputs fills each callback parameter by type: error parameters receive
// err, every other parameter receives the body.
func ackInputs(typ reflect.Type, err error, body map[string]any) []reflect.Value {
	in := make([]reflect.Value, typ.NumIn())
	for i := range in {
		param := typ.In(i)
		variadic := typ.IsVariadic() && i == len(in)-1
		if variadic {
			param = param.Elem()
		}

		var v reflect.Value
		if param == errorType {
			v = reflect.Zero(param)
			if err != nil {
				v = reflect.ValueOf(err)
			}
		} else {
			v = bodyAs(body, param)
		}

		if variadic {
			v = reflect.Append(reflect.MakeSlice(typ.In(i), 0, 1), v)
		}
		in[i] = v
	}
	return in
}

// bodyAs converts the acknowledgement body to param. Maps keep the entries
// whose values fit; strings receive the status.
func bodyAs(body map[string]any, param reflect.Type) reflect.Value {
	value := reflect.ValueOf(body)
	if value.Type().AssignableTo(param) {
		return value
	}

	switch param.Kind() {
	case reflect.Map:
		if param.Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(param, len(body))
		for k, v := range body {
			rv := reflect.ValueOf(v)
			if !rv.IsValid() || !rv.Type().ConvertibleTo(param.Elem()) {
				continue
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(param.Key()), rv.Convert(param.Elem()))
		}
		return out
	case reflect.String:
		status, _ := body["status"].(string)
		return reflect.ValueOf(status).Convert(param)
	}
	return reflect.Zero(param)
}

// ackBody is the acknowledgement body for an engine operation.
func ackBody(err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

func answer(ack ackFunc, err error) {
	if ack != nil {
		ack(err, ackBody(err))
	}
}
