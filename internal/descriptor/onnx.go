package descriptor

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelConfig describes an ONNX image-embedding model such as a ResNet-50
// with its classification head removed.
type ModelConfig struct {
	Path        string
	LibraryPath string
	InputName   string
	OutputName  string
	// InputSize is the square crop fed to the network.
	InputSize int
	// OutputShape is the raw output tensor shape, e.g. [1 2048 1 1].
	OutputShape []int64
}

// ImageNet channel statistics
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ONNXExtractor embeds images with an ONNX model. The session is created
// once and shared by every Embed call.
type ONNXExtractor struct {
	logger      zerolog.Logger
	config      ModelConfig
	inputShape  ort.Shape
	outputShape ort.Shape
	dim         int

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewONNXExtractor loads the model and prepares an inference session
func NewONNXExtractor(logger zerolog.Logger, cfg ModelConfig) (*ONNXExtractor, error) {
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.Path)
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid model input size %d", cfg.InputSize)
	}
	if len(cfg.OutputShape) == 0 || cfg.OutputShape[0] != 1 {
		return nil, fmt.Errorf("model output shape must start with a batch dimension of 1, got %v", cfg.OutputShape)
	}

	outputShape := ort.NewShape(cfg.OutputShape...)
	dim := int(outputShape.FlattenedSize())
	if dim <= 0 {
		return nil, fmt.Errorf("invalid model output shape %v", cfg.OutputShape)
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(
		cfg.Path,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model session: %w", err)
	}

	logger.Info().
		Str("model", cfg.Path).
		Str("input", cfg.InputName).
		Str("output", cfg.OutputName).
		Int("dim", dim).
		Msg("embedding model loaded")

	size := int64(cfg.InputSize)
	return &ONNXExtractor{
		logger:      logger.With().Str("extractor", "onnx").Logger(),
		config:      cfg,
		inputShape:  ort.NewShape(1, 3, size, size),
		outputShape: outputShape,
		dim:         dim,
		session:     sess,
	}, nil
}

// Dim returns the flattened model output size
func (o *ONNXExtractor) Dim() int {
	return o.dim
}

// Embed runs the model on img and returns the flattened output
func (o *ONNXExtractor) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty raster", ErrUnsupportedImage)
	}

	inputTensor, err := ort.NewTensor(o.inputShape, o.preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](o.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	o.mu.Lock()
	err = o.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor})
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := outputTensor.GetData()
	if len(out) != o.dim {
		return nil, fmt.Errorf("model returned %d values, expected %d", len(out), o.dim)
	}

	vec := make([]float32, o.dim)
	copy(vec, out)
	return vec, nil
}

// preprocess resizes the short side to 256/224 of the crop, centre-crops
// and normalises with ImageNet statistics into an NCHW buffer.
func (o *ONNXExtractor) preprocess(img image.Image) []float32 {
	size := o.config.InputSize
	scaled := size * 256 / 224

	b := img.Bounds()
	var w, h uint
	if b.Dx() < b.Dy() {
		w = uint(scaled)
	} else {
		h = uint(scaled)
	}
	resized := resize.Resize(w, h, img, resize.Bilinear)
	cropped := imaging.CropCenter(resized, size, size)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*cropped.Stride + x*4
			p := y*size + x
			for ch := 0; ch < 3; ch++ {
				v := float32(cropped.Pix[i+ch]) / 255.0
				data[ch*plane+p] = (v - imagenetMean[ch]) / imagenetStd[ch]
			}
		}
	}
	return data
}

// Close releases the model session and the ONNX environment. The
// environment is process-wide, so other ONNXExtractors stop working too.
func (o *ONNXExtractor) Close() error {
	o.logger.Info().Msg("closing embedding model session")
	if o.session != nil {
		if err := o.session.Destroy(); err != nil {
			return err
		}
		o.session = nil
	}
	return ort.DestroyEnvironment()
}
