package ensemble

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Skufu/lifeline/internal/symptom"
)

// ortEnv manages process-wide ONNX Runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

// InitONNX initializes the ONNX Runtime from the shared library at libPath.
// Only the first call has any effect.
func InitONNX(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXModel runs a converted classifier that takes a float tensor of shape
// [1, features] and emits an int64 label tensor.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	nFeatures  int64
}

// LoadONNXModel opens an inference session for the model at path. InitONNX
// must have succeeded first.
func LoadONNXModel(path string, nFeatures int) (*ONNXModel, error) {
	if ortEnv.err != nil {
		return nil, fmt.Errorf("onnx: runtime unavailable: %w", ortEnv.err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 input tensor, got %d", len(inputs))
	}
	dims := inputs[0].Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D input tensor, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != int64(nFeatures) {
		return nil, fmt.Errorf("onnx: model expects %d features, vocabulary has %d", dims[1], nFeatures)
	}

	outputName := ""
	for _, out := range outputs {
		if out.Name == "label" || out.Name == "output_label" {
			outputName = out.Name
			break
		}
	}
	if outputName == "" {
		if len(outputs) == 0 {
			return nil, fmt.Errorf("onnx: model has no outputs")
		}
		outputName = outputs[0].Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputs[0].Name}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputName,
		nFeatures:  int64(nFeatures),
	}, nil
}

// Predict runs a single inference call.
func (m *ONNXModel) Predict(fv symptom.FeatureVector) (int, error) {
	if int64(len(fv)) != m.nFeatures {
		return 0, fmt.Errorf("onnx: feature vector has %d entries, want %d", len(fv), m.nFeatures)
	}

	in, err := ort.NewTensor(ort.NewShape(1, m.nFeatures), fv.Float32())
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("onnx: inference failed: %w", err)
	}

	data := out.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("onnx: empty label output")
	}
	return int(data[0]), nil
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
