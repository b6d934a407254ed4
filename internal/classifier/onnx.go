package classifier

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/anime-shed/smokesignal-go/internal/logger"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

// ONNXOptions configures the ONNX Runtime backend
type ONNXOptions struct {
	ModelPath    string
	LibraryPath  string
	MetadataPath string
	Threads      int
}

// ONNX runs the model through ONNX Runtime. Sessions may be run concurrently.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputShape []int64
}

var envMu sync.Mutex

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: failed to initialize ONNX environment: %v", ErrModelLoad, err)
	}
	return nil
}

// NewONNX loads the model and reads its input contract
func NewONNX(opts ONNXOptions) (*ONNX, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: io info: %v", ErrModelLoad, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("%w: unexpected io (in:%d out:%d)", ErrModelLoad, len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]
	shape := []int64(in.Dimensions)

	md, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if md != nil {
		shape = md.InputShape
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", ErrModelLoad, err)
	}
	defer sessOpts.Destroy()
	if err := configureThreads(sessOpts, opts.Threads); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, []string{in.Name}, []string{out.Name}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: session: %v", ErrModelLoad, err)
	}

	logger.Module("classifier").WithFields(map[string]interface{}{
		"backend":     "onnx",
		"model_path":  opts.ModelPath,
		"input":       in.Name,
		"output":      out.Name,
		"input_shape": shape,
	}).Info("Model loaded")

	return &ONNX{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
		inputShape: append([]int64(nil), shape...),
	}, nil
}

type threadSetter interface {
	SetIntraOpNumThreads(n int) error
}

// configureThreads leaves the runtime default in place when threads is 0
func configureThreads(opts threadSetter, threads int) error {
	if threads <= 0 {
		return nil
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return fmt.Errorf("%w: intra-op threads %d: %v", ErrModelLoad, threads, err)
	}
	return nil
}

func (c *ONNX) InputShape() []int64 { return append([]int64(nil), c.inputShape...) }

func (c *ONNX) Score(t preprocess.Tensor) (float64, error) {
	if err := checkInput(c.inputShape, t); err != nil {
		return 0, err
	}

	input, err := ort.NewTensor(ort.NewShape(t.Int64Shape()...), t.Data)
	if err != nil {
		return 0, fmt.Errorf("%w: tensor: %v", ErrScoring, err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{input}, outputs); err != nil {
		return 0, fmt.Errorf("%w: run: %v", ErrScoring, err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("%w: unexpected output type %T", ErrScoring, outputs[0])
	}
	return ScoreFromOutput(out.GetData())
}

func (c *ONNX) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}
