package ussh

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

var bigEnd_ = binary.BigEndian

// marshal appends the wire encoding of v to b. Supports the same scalar
// set as the SFTP codec (uint8/32/64, string, []byte) plus, via
// reflection, structs (each exported field in order) and slices (each
// element in order) - enough to encode every SSH message struct in
// messages.go without a hand written marshaller per message.
func marshal(b []byte, v interface{}) []byte {
	switch v := v.(type) {
	case nil:
		return b
	case bool:
		if v {
			return append(b, 1)
		}
		return append(b, 0)
	case uint8:
		return append(b, v)
	case uint32:
		return bigEnd_.AppendUint32(b, v)
	case uint64:
		return bigEnd_.AppendUint64(b, v)
	case string:
		return marshalString(b, v)
	case []string:
		return marshalNameList(b, v)
	case []byte:
		return marshalBigIntBytes(b, v)
	default:
		switch d := reflect.ValueOf(v); d.Kind() {
		case reflect.Struct:
			return marshalStruct(b, d)
		case reflect.Array:
			for i, n := 0, d.Len(); i < n; i++ {
				b = marshal(b, d.Index(i).Interface())
			}
			return b
		case reflect.Slice:
			for i, n := 0, d.Len(); i < n; i++ {
				b = marshal(b, d.Index(i).Interface())
			}
			return b
		case reflect.Ptr:
			if d.IsNil() {
				return b
			}
			return marshal(b, d.Elem().Interface())
		default:
			panic(fmt.Sprintf("marshal(%#v): cannot handle type %T", v, v))
		}
	}
}

// marshalStruct walks a message struct field by field, honoring the
// `ssh:"rest"` tag (append raw, no length prefix) the way messages.go uses
// it for already-encoded method/request specific payloads.
func marshalStruct(b []byte, d reflect.Value) []byte {
	t := d.Type()
	for i, n := 0, d.NumField(); i < n; i++ {
		field := d.Field(i)
		if "rest" == t.Field(i).Tag.Get("ssh") {
			b = append(b, field.Bytes()...)
			continue
		}
		b = marshal(b, field.Interface())
	}
	return b
}

func marshalString(b []byte, s string) []byte {
	return append(bigEnd_.AppendUint32(b, uint32(len(s))), s...)
}

func marshalNameList(b []byte, names []string) []byte {
	joined := joinComma(names)
	return marshalString(b, joined)
}

func marshalBigIntBytes(b []byte, v []byte) []byte {
	return append(bigEnd_.AppendUint32(b, uint32(len(v))), v...)
}

func joinComma(names []string) (rv string) {
	for i, n := range names {
		if 0 != i {
			rv += ","
		}
		rv += n
	}
	return
}

func splitComma(s string) (rv []string) {
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			rv = append(rv, s[start:i])
			start = i + 1
		}
	}
	rv = append(rv, s[start:])
	if 1 == len(rv) && 0 == len(rv[0]) {
		return nil
	}
	return
}

func unmarshalUint32(b []byte) (v uint32, rest []byte) {
	return bigEnd_.Uint32(b), b[4:]
}

func unmarshalUint32Safe(b []byte) (v uint32, rest []byte, ok bool) {
	if len(b) < 4 {
		return 0, b, false
	}
	return bigEnd_.Uint32(b), b[4:], true
}

func unmarshalUint64(b []byte) (v uint64, rest []byte) {
	return bigEnd_.Uint64(b), b[8:]
}

func unmarshalString(b []byte) (v string, rest []byte) {
	length := bigEnd_.Uint32(b)
	b = b[4:]
	return string(b[:length]), b[length:]
}

func unmarshalStringSafe(b []byte) (v string, rest []byte, ok bool) {
	if len(b) < 4 {
		return "", b, false
	}
	length := bigEnd_.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < length {
		return "", b, false
	}
	return string(b[:length]), b[length:], true
}

func unmarshalBytes(b []byte) (v []byte, rest []byte) {
	length := bigEnd_.Uint32(b)
	b = b[4:]
	return b[:length], b[length:]
}

func unmarshalNameList(b []byte) (v []string, rest []byte) {
	s, rest := unmarshalString(b)
	return splitComma(s), rest
}

func unmarshalBool(b []byte) (v bool, rest []byte) {
	return b[0] != 0, b[1:]
}

// decode fills the exported fields of msg (a pointer to struct) from the
// raw packet payload, which must begin with the message type byte already
// stripped off by the caller. Mirrors marshal's struct-field-order
// convention and the reflective decode style used throughout the sftp
// package's unmarshalAttrs/unmarshalFileStat helpers, generalized to the
// small set of field types SSH messages use.
func decode(b []byte, msg interface{}) (err error) {
	v := reflect.ValueOf(msg).Elem()
	t := v.Type()
	for i, n := 0, v.NumField(); i < n; i++ {
		field := v.Field(i)
		if "rest" == t.Field(i).Tag.Get("ssh") {
			cp := make([]byte, len(b))
			copy(cp, b)
			field.SetBytes(cp)
			b = nil
			continue
		}
		switch field.Kind() {
		case reflect.Array:
			ln := field.Len()
			if len(b) < ln {
				return newParseError(0)
			}
			reflect.Copy(field, reflect.ValueOf(b[:ln]))
			b = b[ln:]
		case reflect.Uint8:
			if 0 == len(b) {
				return newParseError(0)
			}
			field.SetUint(uint64(b[0]))
			b = b[1:]
		case reflect.Uint32:
			if len(b) < 4 {
				return newParseError(0)
			}
			var u uint32
			u, b = unmarshalUint32(b)
			field.SetUint(uint64(u))
		case reflect.Uint64:
			if len(b) < 8 {
				return newParseError(0)
			}
			var u uint64
			u, b = unmarshalUint64(b)
			field.SetUint(u)
		case reflect.String:
			var s string
			var ok bool
			s, b, ok = unmarshalStringSafe(b)
			if !ok {
				return newParseError(0)
			}
			field.SetString(s)
		case reflect.Bool:
			if 0 == len(b) {
				return newParseError(0)
			}
			var bv bool
			bv, b = unmarshalBool(b)
			field.SetBool(bv)
		case reflect.Slice:
			switch field.Type().Elem().Kind() {
			case reflect.String:
				var names []string
				names, b = unmarshalNameList(b)
				field.Set(reflect.ValueOf(names))
			case reflect.Uint8:
				var by []byte
				by, b = unmarshalBytes(b)
				cp := make([]byte, len(by))
				copy(cp, by)
				field.SetBytes(cp)
			default:
				panic(fmt.Sprintf("decode: cannot handle slice of %s", field.Type().Elem()))
			}
		default:
			panic(fmt.Sprintf("decode: cannot handle field kind %s", field.Kind()))
		}
	}
	return nil
}
