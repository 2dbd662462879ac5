package protoreg

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// marshalMessage builds a dynamic protobuf message of desc's shape from a
// plain Go value map (resolver field arguments) and marshals it to wire
// format.
func marshalMessage(desc protoreflect.MessageDescriptor, values map[string]any) ([]byte, error) {
	msg := dynamicpb.NewMessage(desc)
	if err := populateMessage(msg, values); err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// decodeResponse unmarshals body as desc's shape and projects it into a
// plain Go value (map[string]any / []any / scalar), matching the shape
// `@http`'s JSON decoding produces so resolver Expressions can treat both
// transports uniformly.
func decodeResponse(desc protoreflect.MessageDescriptor, body []byte) (any, error) {
	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("protoreg: decoding %s: %w", desc.FullName(), err)
	}
	return messageToGo(msg), nil
}

func populateMessage(msg *dynamicpb.Message, values map[string]any) error {
	if values == nil {
		return nil
	}
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		raw, ok := values[string(fd.Name())]
		if !ok {
			raw, ok = values[fd.JSONName()]
		}
		if !ok || raw == nil {
			continue
		}
		v, err := goToValue(msg, fd, raw)
		if err != nil {
			return fmt.Errorf("protoreg: field %s: %w", fd.Name(), err)
		}
		msg.Set(fd, v)
	}
	return nil
}

func goToValue(msg *dynamicpb.Message, fd protoreflect.FieldDescriptor, raw any) (protoreflect.Value, error) {
	if fd.IsList() {
		items, ok := raw.([]any)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected list, got %T", raw)
		}
		list := msg.NewField(fd).List()
		for _, item := range items {
			ev, err := scalarToValue(fd, item)
			if err != nil {
				return protoreflect.Value{}, err
			}
			list.Append(ev)
		}
		return protoreflect.ValueOfList(list), nil
	}
	return scalarToValue(fd, raw)
}

func scalarToValue(fd protoreflect.FieldDescriptor, raw any) (protoreflect.Value, error) {
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		nested, ok := raw.(map[string]any)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected object for message field %s, got %T", fd.Name(), raw)
		}
		msg := dynamicpb.NewMessage(fd.Message())
		if err := populateMessage(msg, nested); err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfMessage(msg), nil
	}

	switch fd.Kind() {
	case protoreflect.BoolKind:
		b, ok := raw.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.StringKind:
		s, ok := raw.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string, got %T", raw)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		s, ok := raw.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string for bytes, got %T", raw)
		}
		return protoreflect.ValueOfBytes([]byte(s)), nil
	case protoreflect.EnumKind:
		switch x := raw.(type) {
		case string:
			ev := fd.Enum().Values().ByName(protoreflect.Name(x))
			if ev == nil {
				return protoreflect.Value{}, fmt.Errorf("unknown enum value %q for %s", x, fd.Enum().FullName())
			}
			return protoreflect.ValueOfEnum(ev.Number()), nil
		default:
			n, err := asInt64(raw)
			if err != nil {
				return protoreflect.Value{}, err
			}
			return protoreflect.ValueOfEnum(protoreflect.EnumNumber(n)), nil
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := asInt64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := asInt64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(n), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := asInt64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := asInt64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(uint64(n)), nil
	case protoreflect.FloatKind:
		f, err := asFloat64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, err := asFloat64(raw)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat64(f), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s", fd.Kind())
	}
}

func asInt64(raw any) (int64, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

func asFloat64(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

// messageToGo projects a decoded protobuf message into the same
// map[string]any/[]any/scalar shape `@http`'s JSON decoding produces.
func messageToGo(msg protoreflect.Message) map[string]any {
	out := make(map[string]any)
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		out[fd.JSONName()] = valueToGo(fd, v)
		return true
	})
	return out
}

func valueToGo(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	if fd.IsList() {
		list := v.List()
		out := make([]any, list.Len())
		for i := 0; i < list.Len(); i++ {
			out[i] = scalarToGo(fd, list.Get(i))
		}
		return out
	}
	return scalarToGo(fd, v)
}

func scalarToGo(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return messageToGo(v.Message())
	case protoreflect.EnumKind:
		ev := fd.Enum().Values().ByNumber(v.Enum())
		if ev != nil {
			return string(ev.Name())
		}
		return int64(v.Enum())
	case protoreflect.BytesKind:
		return string(v.Bytes())
	default:
		return v.Interface()
	}
}
