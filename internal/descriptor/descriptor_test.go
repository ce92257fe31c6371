package descriptor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framecull/internal/frames"
	"github.com/kikiluvv/framecull/internal/keyframe"
)

func candidates(images ...image.Image) []keyframe.Candidate {
	seq := frames.FromImages(images...)
	out := make([]keyframe.Candidate, len(seq))
	for i, f := range seq {
		out[i] = keyframe.Candidate{Frame: f}
	}
	return out
}

func solid(c color.Color) image.Image {
	return imaging.New(8, 8, c)
}

// meanExtractor returns the mean red and green value so output is easy to predict
type meanExtractor struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (m *meanExtractor) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, g, _, _ := img.At(0, 0).RGBA()
	if m.fail > 0 && int(r>>8) == m.fail {
		return nil, fmt.Errorf("%w: poisoned", ErrUnsupportedImage)
	}
	return []float32{float32(r >> 8), float32(g >> 8)}, nil
}

func (m *meanExtractor) Dim() int     { return 2 }
func (m *meanExtractor) Close() error { return nil }

func TestColorExtractorDimAndRange(t *testing.T) {
	ex := NewColorExtractor(64)
	vec, err := ex.Embed(context.Background(), solid(color.NRGBA{R: 255, G: 0, B: 0, A: 255}))
	require.NoError(t, err)
	require.Len(t, vec, ex.Dim())

	// all red mass lands in the top red bin
	assert.InDelta(t, 1.0, vec[colorBins-1], 1e-6)
	assert.InDelta(t, 1.0, vec[colorBins], 1e-6)
	assert.InDelta(t, 1.0, vec[2*colorBins], 1e-6)
	assert.InDelta(t, 0.0, vec[3*colorBins+1], 1e-6)
	for _, v := range vec {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestColorExtractorDeterministic(t *testing.T) {
	ex := NewColorExtractor(32)
	img := imaging.New(100, 60, color.NRGBA{R: 10, G: 120, B: 200, A: 255})

	a, err := ex.Embed(context.Background(), img)
	require.NoError(t, err)
	b, err := ex.Embed(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestColorExtractorRejectsEmpty(t *testing.T) {
	ex := NewColorExtractor(0)
	_, err := ex.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = ex.Embed(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()
	vec := []float32{1, 2, 3}
	require.NoError(t, s.Put("a", 0, vec))
	vec[0] = 99

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)
	assert.Equal(t, 3, s.Dim())
	assert.Equal(t, 1, s.Len())

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsMismatchedDims(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put("a", 0, []float32{1, 2}))

	err := s.Put("b", 1, []float32{1, 2, 3})
	var invalid *InvalidDescriptorError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 2, invalid.Want)
	assert.Equal(t, 3, invalid.Got)

	assert.Error(t, s.Put("c", 2, nil))
	assert.Error(t, s.Put("a", 3, []float32{0, 0}))
	assert.Equal(t, 1, s.Len())
}

func TestExtractBatchPreservesOrder(t *testing.T) {
	var imgs []image.Image
	for i := 0; i < 12; i++ {
		imgs = append(imgs, solid(color.NRGBA{R: uint8(i * 10), G: uint8(i), A: 255}))
	}

	var (
		mu    sync.Mutex
		calls []int
	)
	store, err := ExtractBatch(context.Background(), &meanExtractor{}, candidates(imgs...), BatchOptions{
		Workers: 4,
		Logger:  zerolog.Nop(),
		Progress: func(done, total int) {
			mu.Lock()
			calls = append(calls, done)
			mu.Unlock()
			assert.Equal(t, 12, total)
		},
	})
	require.NoError(t, err)
	require.Equal(t, 12, store.Len())
	assert.Equal(t, 2, store.Dim())

	for i, e := range store.Entries() {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, fmt.Sprintf("frame_%04d", i), e.ID)
		assert.Equal(t, []float32{float32(i * 10), float32(i)}, e.Vector)
	}
	assert.Len(t, calls, 12)
	assert.Equal(t, 12, calls[len(calls)-1])
}

func TestExtractBatchEmpty(t *testing.T) {
	ex := &meanExtractor{}
	store, err := ExtractBatch(context.Background(), ex, nil, BatchOptions{})
	require.NoError(t, err)
	assert.Zero(t, store.Len())
	assert.Zero(t, ex.calls)
}

func TestExtractBatchUnsupportedImage(t *testing.T) {
	imgs := []image.Image{
		solid(color.NRGBA{R: 1, A: 255}),
		solid(color.NRGBA{R: 7, A: 255}),
		solid(color.NRGBA{R: 3, A: 255}),
	}
	_, err := ExtractBatch(context.Background(), &meanExtractor{fail: 7}, candidates(imgs...), BatchOptions{Workers: 1})
	require.Error(t, err)

	var unsupported *UnsupportedImageError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 1, unsupported.Index)
	assert.True(t, errors.Is(err, ErrUnsupportedImage))
}

func TestExtractBatchUndecodableFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "frame_0000.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not a jpeg"), 0o644))

	cands := []keyframe.Candidate{{Frame: frames.Frame{Index: 4, Path: bad}}}
	_, err := ExtractBatch(context.Background(), &meanExtractor{}, cands, BatchOptions{Workers: 2})

	var unsupported *UnsupportedImageError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, bad, unsupported.ID)
	assert.Equal(t, 4, unsupported.Index)
}

func TestExtractBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExtractBatch(ctx, &meanExtractor{}, candidates(solid(color.White), solid(color.Black)), BatchOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "descriptors"))
	require.NoError(t, err)
	defer fs.Close()

	s := NewStore()
	require.NoError(t, s.Put("frame_0003", 3, []float32{0.1, float32(math.Pi), -1e-7}))
	require.NoError(t, s.Put("frame_0009", 9, []float32{math.MaxFloat32, 0, 1.0 / 3.0}))

	ctx := context.Background()
	require.NoError(t, fs.Save(ctx, "run", s))

	loaded, err := fs.Load(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), loaded.Entries())
	assert.Equal(t, 3, loaded.Dim())

	_, err = fs.Load(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	url := os.Getenv("FRAMECULL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FRAMECULL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	ps, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer ps.Close()
	require.NoError(t, ps.InitSchema(ctx))

	s := NewStore()
	require.NoError(t, s.Put("a", 0, []float32{0.25, -1.5, 3}))
	require.NoError(t, s.Put("b", 5, []float32{1, 2, 1.0 / 3.0}))

	name := "test_" + t.Name()
	require.NoError(t, ps.Save(ctx, name, s))
	// saving twice replaces the batch
	require.NoError(t, ps.Save(ctx, name, s))

	loaded, err := ps.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), loaded.Entries())

	_, err = ps.Load(ctx, "does_not_exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestONNXExtractorMissingModel(t *testing.T) {
	_, err := NewONNXExtractor(zerolog.Nop(), ModelConfig{
		Path:        filepath.Join(t.TempDir(), "missing.onnx"),
		InputSize:   224,
		OutputShape: []int64{1, 2048, 1, 1},
	})
	assert.Error(t, err)
}

func TestONNXExtractorEmbed(t *testing.T) {
	model := os.Getenv("FRAMECULL_TEST_MODEL")
	if model == "" {
		t.Skip("FRAMECULL_TEST_MODEL not set")
	}

	ex, err := NewONNXExtractor(zerolog.Nop(), ModelConfig{
		Path:        model,
		LibraryPath: os.Getenv("ONNXRUNTIME_LIB"),
		InputName:   "input",
		OutputName:  "output",
		InputSize:   224,
		OutputShape: []int64{1, 2048, 1, 1},
	})
	require.NoError(t, err)
	defer ex.Close()

	img := imaging.New(320, 240, color.NRGBA{R: 30, G: 90, B: 160, A: 255})
	a, err := ex.Embed(context.Background(), img)
	require.NoError(t, err)
	b, err := ex.Embed(context.Background(), img)
	require.NoError(t, err)
	assert.Len(t, a, 2048)
	assert.Equal(t, a, b)
}
