package onnxmodel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

func tensorInfo(name string, dataType ort.TensorElementDataType, dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{
		Name:         name,
		OrtValueType: ort.ONNXTypeTensor,
		Dimensions:   ort.NewShape(dims...),
		DataType:     dataType,
	}
}

func TestPickInput(t *testing.T) {
	inputs := []ort.InputOutputInfo{
		tensorInfo("float_input", ort.TensorElementDataTypeFloat, -1, 30),
		tensorInfo("double_input", ort.TensorElementDataTypeDouble, 1, 30),
	}

	t.Run("first by default", func(t *testing.T) {
		info, err := pickInput(inputs, "", 30)
		require.NoError(t, err)
		assert.Equal(t, "float_input", info.Name)
	})

	t.Run("by name", func(t *testing.T) {
		info, err := pickInput(inputs, "double_input", 30)
		require.NoError(t, err)
		assert.EqualValues(t, ort.TensorElementDataTypeDouble, info.DataType)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := pickInput(inputs, "features", 30)
		assert.Error(t, err)
	})

	t.Run("width mismatch", func(t *testing.T) {
		_, err := pickInput(inputs, "", 29)
		assert.Error(t, err)
	})

	t.Run("dynamic width", func(t *testing.T) {
		_, err := pickInput([]ort.InputOutputInfo{tensorInfo("x", ort.TensorElementDataTypeFloat, -1, -1)}, "", 30)
		assert.NoError(t, err)
	})

	t.Run("string input", func(t *testing.T) {
		_, err := pickInput([]ort.InputOutputInfo{tensorInfo("x", ort.TensorElementDataTypeString, -1, 30)}, "", 30)
		assert.Error(t, err)
	})

	t.Run("no inputs", func(t *testing.T) {
		_, err := pickInput(nil, "", 30)
		assert.Error(t, err)
	})
}

func TestPickOutput(t *testing.T) {
	probabilities := ort.InputOutputInfo{Name: "output_probability", OrtValueType: ort.ONNXTypeSequence}
	outputs := []ort.InputOutputInfo{
		tensorInfo("output_label", ort.TensorElementDataTypeInt64, -1),
		probabilities,
	}

	info, err := pickOutput(outputs, "")
	require.NoError(t, err)
	assert.Equal(t, "output_label", info.Name)

	_, err = pickOutput(outputs, "output_probability")
	assert.Error(t, err)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0, -1.5, 149.62}, toFloat32([]float64{0, -1.5, 149.62}))
}

func TestFirstElement_Nil(t *testing.T) {
	_, err := firstElement(nil)
	assert.Error(t, err)
}

func TestFirst(t *testing.T) {
	v, err := first([]int64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = first([]float32{})
	assert.Error(t, err)
}

func TestLoad_MissingArtifact(t *testing.T) {
	_, err := Load(Config{
		Path:     filepath.Join(t.TempDir(), "credit_card_fraud_detection_model.onnx"),
		Features: 30,
	}, zap.NewNop())
	assert.Error(t, err)
}
