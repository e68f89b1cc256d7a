package mlservice

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Messages of the TorchServe inference API (org.pytorch.serve.grpc.inference),
// encoded with protowire.

const (
	pingMethod        = "/org.pytorch.serve.grpc.inference.InferenceAPIsService/Ping"
	predictionsMethod = "/org.pytorch.serve.grpc.inference.InferenceAPIsService/Predictions"
)

type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

type empty struct{}

func (*empty) marshal() []byte { return nil }

func (*empty) unmarshal(b []byte) error {
	return consumeFields(b, func(protowire.Number, protowire.Type, []byte) error { return nil })
}

type healthResponse struct {
	Health string
}

func (m *healthResponse) marshal() []byte {
	var b []byte
	if m.Health != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Health)
	}
	return b
}

func (m *healthResponse) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			m.Health = string(v)
		}
		return nil
	})
}

type predictionsRequest struct {
	ModelName    string
	ModelVersion string
	Input        map[string][]byte
}

func (m *predictionsRequest) marshal() []byte {
	var b []byte
	if m.ModelName != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.ModelName)
	}
	if m.ModelVersion != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.ModelVersion)
	}

	keys := make([]string, 0, len(m.Input))
	for k := range m.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, m.Input[k])

		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	return b
}

func (m *predictionsRequest) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}

		switch num {
		case 1:
			m.ModelName = string(v)
		case 2:
			m.ModelVersion = string(v)
		case 3:
			var key string
			var value []byte
			err := consumeFields(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				switch {
				case num == 1 && typ == protowire.BytesType:
					key = string(v)
				case num == 2 && typ == protowire.BytesType:
					value = append([]byte(nil), v...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if m.Input == nil {
				m.Input = make(map[string][]byte)
			}
			m.Input[key] = value
		}
		return nil
	})
}

type predictionResponse struct {
	Prediction []byte
}

func (m *predictionResponse) marshal() []byte {
	var b []byte
	if len(m.Prediction) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Prediction)
	}
	return b
}

func (m *predictionResponse) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			m.Prediction = append([]byte(nil), v...)
		}
		return nil
	})
}

// consumeFields walks the top-level fields of b. For length-delimited fields v is
// the payload, otherwise the raw encoded value.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "invalid tag")
		}
		b = b[n:]

		var v []byte
		if typ == protowire.BytesType {
			v, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				v = b[:n]
			}
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "invalid field %d", num)
		}
		b = b[n:]

		if err := fn(num, typ, v); err != nil {
			return err
		}
	}

	return nil
}

// codec plugs the messages above into grpc in place of the protobuf codec.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, errors.Errorf("mlservice codec: unexpected message type %T", v)
	}
	return m.marshal(), nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(message)
	if !ok {
		return errors.Errorf("mlservice codec: unexpected message type %T", v)
	}
	return m.unmarshal(data)
}

func (codec) Name() string {
	return "proto"
}
