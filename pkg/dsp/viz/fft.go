package viz

import (
	"bytes"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	MIX_AVG     = 0.10
	POWER_FLOOR = -200.0 // dB reported for empty bins
)

// FFTPlotter renders the averaged power spectrum of the most recent complex
// samples. It is safe to append from one goroutine while another renders.
type FFTPlotter struct {
	mu           sync.Mutex
	buf          []complex64
	filled       int
	len          int
	sampleRate   float64
	centerFreq   float64
	averagePower []float64
	name         string
	plotOptions  []PlotOptions

	fft *fourier.CmplxFFT
	win []float64
}

func NewFFTPlotter(name string, len int, sampleRate, centerFreq float64) *FFTPlotter {
	return &FFTPlotter{
		buf:          make([]complex64, len),
		len:          len,
		sampleRate:   sampleRate,
		centerFreq:   centerFreq,
		averagePower: make([]float64, len),
		name:         name,
		fft:          fourier.NewCmplxFFT(len),
		win:          window.Hann(len),
	}
}

func (p *FFTPlotter) Name() string {
	return p.name
}

// SetTuning updates the axis after a sample rate or frequency change.
func (p *FFTPlotter) SetTuning(sampleRate, centerFreq float64) {
	p.mu.Lock()
	p.sampleRate = sampleRate
	p.centerFreq = centerFreq
	p.mu.Unlock()
}

func (p *FFTPlotter) AppendComplex(s []complex64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s) >= p.len {
		copy(p.buf, s[len(s)-p.len:])
	} else {
		copy(p.buf, p.buf[len(s):])
		copy(p.buf[p.len-len(s):], s)
	}

	p.filled += len(s)
	if p.filled > p.len {
		p.filled = p.len
	}
}

func (pb *FFTPlotter) AddPlotOption(opt PlotOptions) {
	pb.plotOptions = append(pb.plotOptions, opt)
}

// Spectrum returns the averaged power in dB per frequency bin, ordered from
// the lowest to the highest frequency. It returns nil until the plotter has
// seen a full window of samples.
func (pb *FFTPlotter) Spectrum() plotter.XYs {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.filled < pb.len {
		return nil
	}

	// Hann window coherent gain is 0.5.
	norm := complex(0.5*float64(pb.len), 0)
	data := make([]complex128, pb.len)
	for i, v := range pb.buf {
		data[i] = complex(float64(real(v))*pb.win[i], float64(imag(v))*pb.win[i]) / norm
	}

	coeffs := pb.fft.Coefficients(nil, data)

	ret := make(plotter.XYs, len(coeffs))
	for i := range coeffs {
		idx := pb.fft.ShiftIdx(i)
		mag := cmplx.Abs(coeffs[idx])

		pb.averagePower[i] = ((1.0 - MIX_AVG) * pb.averagePower[i]) + (MIX_AVG * mag)

		power := POWER_FLOOR
		if pb.averagePower[i] > 0 {
			power = math.Max(20*math.Log10(pb.averagePower[i]), POWER_FLOOR)
		}
		ret[i] = plotter.XY{X: pb.fft.Freq(idx)*pb.sampleRate + pb.centerFreq, Y: power}
	}

	return ret
}

func (pb *FFTPlotter) GetImage() *ImageContainer {
	xys := pb.Spectrum()
	if xys == nil {
		return nil
	}

	p := plotWithDefaults()
	p.Title.Text = pb.name
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency (Hz)"

	p.Y.Max = 0
	p.Y.Min = -120

	for _, opt := range pb.plotOptions {
		opt(p)
	}

	grid := plotter.NewGrid()
	p.Add(grid)

	if err := plotutil.AddLines(p, "power", xys); err != nil {
		return nil
	}

	var imageData bytes.Buffer
	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil
	}
	return &ImageContainer{name: pb.name, data: imageData.Bytes()}
}
