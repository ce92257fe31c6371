package summary

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framecull/internal/cluster"
	"github.com/kikiluvv/framecull/internal/ffmpeg"
	"github.com/kikiluvv/framecull/internal/frames"
	"github.com/kikiluvv/framecull/internal/keyframe"
)

type fakeEncoder struct {
	calls []ffmpeg.SlideshowOptions
	sizes []image.Point
	err   error
}

func (f *fakeEncoder) Slideshow(_ context.Context, opts ffmpeg.SlideshowOptions) error {
	f.calls = append(f.calls, opts)
	for _, p := range opts.Images {
		img, err := imaging.Open(p)
		if err != nil {
			return err
		}
		f.sizes = append(f.sizes, img.Bounds().Size())
	}
	return f.err
}

func rep(clusterID, index, w, h int) cluster.Representative {
	img := imaging.New(w, h, color.NRGBA{R: uint8(index * 20), A: 255})
	return cluster.Representative{
		Cluster:   clusterID,
		Candidate: keyframe.Candidate{Frame: frames.Frame{Index: index, Image: img}},
		Members:   1,
	}
}

func newAssembler(t *testing.T, enc Encoder, cfg Config) *Assembler {
	t.Helper()
	a, err := NewAssembler(zerolog.Nop(), enc, cfg)
	require.NoError(t, err)
	return a
}

func indexes(reps []cluster.Representative) []int {
	out := make([]int, len(reps))
	for i, r := range reps {
		out[i] = r.Candidate.Index()
	}
	return out
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderChronological, o)

	o, err = ParseOrder("cluster")
	require.NoError(t, err)
	assert.Equal(t, OrderCluster, o)

	_, err = ParseOrder("random")
	assert.Error(t, err)
}

func TestNewAssemblerValidates(t *testing.T) {
	_, err := NewAssembler(zerolog.Nop(), nil, Config{})
	assert.Error(t, err)

	_, err = NewAssembler(zerolog.Nop(), &fakeEncoder{}, Config{Width: 640})
	assert.Error(t, err)

	_, err = NewAssembler(zerolog.Nop(), &fakeEncoder{}, Config{Order: "shuffle"})
	assert.Error(t, err)
}

func TestArrange(t *testing.T) {
	reps := []cluster.Representative{rep(0, 40, 4, 4), rep(1, 7, 4, 4), rep(2, 22, 4, 4)}

	chrono := newAssembler(t, &fakeEncoder{}, Config{Order: OrderChronological})
	assert.Equal(t, []int{7, 22, 40}, indexes(chrono.Arrange(reps)))

	byCluster := newAssembler(t, &fakeEncoder{}, Config{Order: OrderCluster})
	assert.Equal(t, []int{40, 7, 22}, indexes(byCluster.Arrange(reps)))

	// input untouched
	assert.Equal(t, []int{40, 7, 22}, indexes(reps))
}

func TestAssembleEmpty(t *testing.T) {
	enc := &fakeEncoder{}
	_, err := newAssembler(t, enc, Config{}).Assemble(context.Background(), nil, "out.mp4", 1)

	var empty *EmptyInputError
	require.ErrorAs(t, err, &empty)
	assert.True(t, IsEmptyInput(err))
	assert.Empty(t, enc.calls)
}

func TestAssembleRejectsBadFPS(t *testing.T) {
	_, err := newAssembler(t, &fakeEncoder{}, Config{}).
		Assemble(context.Background(), []cluster.Representative{rep(0, 1, 4, 4)}, "out.mp4", 0)
	assert.Error(t, err)
}

func TestAssembleNormalisesFrames(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{}
	a := newAssembler(t, enc, Config{FramesDir: filepath.Join(dir, "summary")})

	reps := []cluster.Representative{rep(0, 9, 32, 24), rep(1, 3, 64, 64), rep(2, 5, 10, 40)}
	out, err := a.Assemble(context.Background(), reps, filepath.Join(dir, "out", "summary.mp4"), 2)
	require.NoError(t, err)

	require.Len(t, enc.calls, 1)
	call := enc.calls[0]
	assert.Equal(t, 2, call.FPS)
	assert.Equal(t, out.Video, call.Output)
	require.Len(t, call.Images, 3)
	assert.Equal(t, call.Images, out.Frames)
	assert.Equal(t, "summary_0000.jpg", filepath.Base(call.Images[0]))

	// canvas follows the first frame in playback order (index 3, 64x64)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 64, out.Height)
	for _, s := range enc.sizes {
		assert.Equal(t, image.Pt(64, 64), s)
	}

	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.NoError(t, err)
}

func TestAssembleFixedSize(t *testing.T) {
	enc := &fakeEncoder{}
	a := newAssembler(t, enc, Config{Width: 48, Height: 30})

	out, err := a.Assemble(context.Background(), []cluster.Representative{rep(0, 1, 100, 100)}, filepath.Join(t.TempDir(), "s.mp4"), 1)
	require.NoError(t, err)
	assert.Equal(t, []image.Point{image.Pt(48, 30)}, enc.sizes)
	// temporary frames are not reported
	assert.Empty(t, out.Frames)
}

func TestAssembleDecodeFailure(t *testing.T) {
	bad := cluster.Representative{
		Candidate: keyframe.Candidate{Frame: frames.Frame{Index: 6, Path: filepath.Join(t.TempDir(), "gone.jpg")}},
	}
	enc := &fakeEncoder{}
	_, err := newAssembler(t, enc, Config{}).Assemble(context.Background(), []cluster.Representative{bad}, filepath.Join(t.TempDir(), "s.mp4"), 1)

	var decodeErr *keyframe.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 6, decodeErr.Index)
	assert.Empty(t, enc.calls)
}

func TestAssembleEncoderError(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("boom")}
	_, err := newAssembler(t, enc, Config{}).
		Assemble(context.Background(), []cluster.Representative{rep(0, 1, 8, 8)}, filepath.Join(t.TempDir(), "s.mp4"), 1)
	assert.ErrorContains(t, err, "boom")
}

func TestLetterbox(t *testing.T) {
	img := imaging.New(20, 10, color.White)
	out := letterbox(img, 20, 20)
	assert.Equal(t, image.Pt(20, 20), out.Bounds().Size())

	// top band is black, centre keeps the source
	r, g, b, _ := out.At(10, 0).RGBA()
	assert.Zero(t, r+g+b)
	r, _, _, _ = out.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	assert.Same(t, img, letterbox(img, 20, 10))
}
