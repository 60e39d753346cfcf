package viz

import (
	"bytes"
	"sync"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// IQPlotter plots the I and Q components of the most recent samples.
type IQPlotter struct {
	mu          sync.Mutex
	buf         []complex64
	size        int
	name        string
	plotOptions []PlotOptions
}

func NewIQPlotter(name string, size int) *IQPlotter {
	return &IQPlotter{
		buf:  make([]complex64, 0, size),
		size: size,
		name: name,
	}
}

func (t *IQPlotter) Name() string {
	return t.name
}

func (tp *IQPlotter) AppendComplex(s []complex64) {
	tp.mu.Lock()
	tp.buf = append(tp.buf, s...)

	if len(tp.buf) > tp.size {
		tp.buf = append(tp.buf[:0], tp.buf[len(tp.buf)-tp.size:]...)
	}
	tp.mu.Unlock()
}

func (tp *IQPlotter) AddPlotOption(opt PlotOptions) {
	tp.plotOptions = append(tp.plotOptions, opt)
}

func (tp *IQPlotter) GetImage() *ImageContainer {
	tp.mu.Lock()
	if len(tp.buf) < tp.size {
		tp.mu.Unlock()
		return nil
	}
	in := make(plotter.XYs, tp.size)
	quad := make(plotter.XYs, tp.size)
	for i, v := range tp.buf {
		in[i] = plotter.XY{X: float64(i), Y: float64(real(v))}
		quad[i] = plotter.XY{X: float64(i), Y: float64(imag(v))}
	}
	tp.mu.Unlock()

	p := plotWithDefaults()

	p.Title.Text = tp.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -1
	p.Y.Max = 1
	p.X.Label.Text = "sample"

	for _, opt := range tp.plotOptions {
		opt(p)
	}

	grid := plotter.NewGrid()
	p.Add(grid)

	if err := plotutil.AddLines(p, "I", in, "Q", quad); err != nil {
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
	return &ImageContainer{name: tp.name, data: imageData.Bytes()}
}
