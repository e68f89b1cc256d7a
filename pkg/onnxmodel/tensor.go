package onnxmodel

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

func pickInput(inputs []ort.InputOutputInfo, name string, features int) (ort.InputOutputInfo, error) {
	info, err := pick(inputs, name, "input")
	if err != nil {
		return info, err
	}

	switch info.DataType {
	case ort.TensorElementDataTypeFloat, ort.TensorElementDataTypeDouble:
	default:
		return info, errors.Errorf("input %q has unsupported element type %v", info.Name, info.DataType)
	}

	dims := info.Dimensions
	if len(dims) > 0 {
		if last := dims[len(dims)-1]; last > 0 && last != int64(features) {
			return info, errors.Errorf("input %q expects %d features, record has %d", info.Name, last, features)
		}
	}

	return info, nil
}

func pickOutput(outputs []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	info, err := pick(outputs, name, "output")
	if err != nil {
		return info, err
	}

	if info.OrtValueType != ort.ONNXTypeTensor {
		return info, errors.Errorf("output %q is not a tensor", info.Name)
	}

	return info, nil
}

// pick returns the entry called name, or the first one when name is empty.
func pick(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.Errorf("model has no %s", kind)
	}

	if name == "" {
		return infos[0], nil
	}

	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}

	return ort.InputOutputInfo{}, errors.Errorf("model has no %s named %q", kind, name)
}

func newInputTensor(dataType ort.TensorElementDataType, row []float64) (ort.Value, error) {
	shape := ort.NewShape(1, int64(len(row)))

	if dataType == ort.TensorElementDataTypeDouble {
		data := make([]float64, len(row))
		copy(data, row)
		return ort.NewTensor(shape, data)
	}

	return ort.NewTensor(shape, toFloat32(row))
}

func toFloat32(row []float64) []float32 {
	out := make([]float32, len(row))
	for i, v := range row {
		out[i] = float32(v)
	}
	return out
}

func firstElement(v ort.Value) (float64, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return first(t.GetData())
	case *ort.Tensor[float64]:
		return first(t.GetData())
	case *ort.Tensor[int64]:
		return first(t.GetData())
	case *ort.Tensor[int32]:
		return first(t.GetData())
	case nil:
		return 0, errors.New("model produced no output")
	default:
		return 0, errors.Errorf("unsupported output value %T", v)
	}
}

func first[T float32 | float64 | int64 | int32](data []T) (float64, error) {
	if len(data) == 0 {
		return 0, errors.New("model produced an empty output")
	}
	return float64(data[0]), nil
}
