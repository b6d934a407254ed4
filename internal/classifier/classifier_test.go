package classifier

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

func TestScoreFromOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     []float32
		want    float64
		wantErr bool
	}{
		{name: "first element wins", out: []float32{0.75, 0.25}, want: 0.75},
		{name: "zero", out: []float32{0}, want: 0},
		{name: "one", out: []float32{1}, want: 1},
		{name: "empty", out: nil, wantErr: true},
		{name: "nan", out: []float32{float32(math.NaN())}, wantErr: true},
		{name: "inf", out: []float32{float32(math.Inf(1))}, wantErr: true},
		{name: "negative", out: []float32{-0.1}, wantErr: true},
		{name: "above one", out: []float32{1.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScoreFromOutput(tt.out)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrScoring)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-7)
		})
	}
}

func TestCheckInput(t *testing.T) {
	tensor := preprocess.Tensor{Shape: []int{1, 2, 2, 3}, Data: make([]float32, 12)}
	assert.NoError(t, checkInput([]int64{-1, 2, 2, 3}, tensor))
	assert.NoError(t, checkInput([]int64{1, 12}, tensor))
	assert.ErrorIs(t, checkInput([]int64{1, 4, 4, 3}, tensor), ErrScoring)
}

func TestSerialize_NoConcurrentScores(t *testing.T) {
	var active, peak int32
	inner := Func{
		Shape: []int64{1, 3},
		Fn: func(preprocess.Tensor) (float64, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return 0.5, nil
		},
	}

	c := Serialize(inner)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score, err := c.Score(preprocess.Tensor{})
			assert.NoError(t, err)
			assert.Equal(t, 0.5, score)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	assert.Equal(t, []int64{1, 3}, c.InputShape())
	assert.Same(t, c, Serialize(c))
	assert.NoError(t, c.Close())
}

func TestFunc_NilFunction(t *testing.T) {
	_, err := Func{}.Score(preprocess.Tensor{})
	assert.ErrorIs(t, err, ErrScoring)
}

func TestLoadMetadata(t *testing.T) {
	md, err := LoadMetadata("")
	require.NoError(t, err)
	assert.Nil(t, md)

	dir := t.TempDir()
	good := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"input_shape":[1,150,150,3],"output_shape":[1,1],"classes":["wildfire"],"image_size":150}`), 0o644))

	md, err = LoadMetadata(good)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 150, 150, 3}, md.InputShape)
	assert.Equal(t, 150, md.ImageSize)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"classes":[]}`), 0o644))
	_, err = LoadMetadata(bad)
	assert.ErrorIs(t, err, ErrModelLoad)

	_, err = LoadMetadata(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestNewBackends_MissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "model.bin")

	_, err := NewONNX(ONNXOptions{ModelPath: missing})
	assert.ErrorIs(t, err, ErrModelLoad)

	_, err = NewTFLite(missing, 1)
	assert.ErrorIs(t, err, ErrModelLoad)
}

type threadRecorder struct {
	calls []int
	err   error
}

func (r *threadRecorder) SetIntraOpNumThreads(n int) error {
	r.calls = append(r.calls, n)
	return r.err
}

func TestConfigureThreads(t *testing.T) {
	r := &threadRecorder{}
	require.NoError(t, configureThreads(r, 0))
	assert.Empty(t, r.calls)

	require.NoError(t, configureThreads(r, 4))
	assert.Equal(t, []int{4}, r.calls)

	failing := &threadRecorder{err: errors.New("invalid thread count")}
	err := configureThreads(failing, 512)
	require.ErrorIs(t, err, ErrModelLoad)
	assert.Contains(t, err.Error(), "invalid thread count")
	assert.Contains(t, err.Error(), "512")
}
