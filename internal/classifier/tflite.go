package classifier

import (
	"fmt"
	"os"

	"github.com/tphakala/go-tflite"

	"github.com/anime-shed/smokesignal-go/internal/logger"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

// TFLite runs the model through the TensorFlow Lite interpreter. The
// interpreter is not safe for concurrent use; NewTFLite returns it serialized.
type TFLite struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
	inputShape  []int64
}

// NewTFLite loads the model file and allocates the interpreter
func NewTFLite(modelPath string, threads int) (Classifier, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("%w: cannot load TensorFlow Lite model %s", ErrModelLoad, modelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if threads > 0 {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Module("classifier").WithField("message", msg).Error("TFLite error")
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("%w: cannot create interpreter", ErrModelLoad)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: tensor allocation failed: %v", ErrModelLoad, status)
	}

	input := interpreter.GetInputTensor(0)
	if input == nil {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: model has no input tensor", ErrModelLoad)
	}
	shape := make([]int64, input.NumDims())
	for i := range shape {
		shape[i] = int64(input.Dim(i))
	}

	logger.Module("classifier").WithFields(map[string]interface{}{
		"backend":     "tflite",
		"model_path":  modelPath,
		"input_shape": shape,
		"threads":     threads,
	}).Info("Model loaded")

	return Serialize(&TFLite{model: model, interpreter: interpreter, inputShape: shape}), nil
}

func (c *TFLite) InputShape() []int64 { return append([]int64(nil), c.inputShape...) }

func (c *TFLite) Score(t preprocess.Tensor) (float64, error) {
	if err := checkInput(c.inputShape, t); err != nil {
		return 0, err
	}

	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return 0, fmt.Errorf("%w: cannot get input tensor", ErrScoring)
	}
	if input.Type() != tflite.Float32 {
		return 0, fmt.Errorf("%w: input tensor type %v is not float32", ErrScoring, input.Type())
	}
	copy(input.Float32s(), t.Data)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return 0, fmt.Errorf("%w: tensor invoke failed: %v", ErrScoring, status)
	}

	output := c.interpreter.GetOutputTensor(0)
	if output == nil {
		return 0, fmt.Errorf("%w: cannot get output tensor", ErrScoring)
	}
	return ScoreFromOutput(output.Float32s())
}

func (c *TFLite) Close() error {
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
	return nil
}
