// Command pulseview inspects a captured pulse stream. It renders an
// interactive HTML page with the selected pulse's video window and the
// azimuth coverage of the whole stream, and can optionally save the
// pulse window as a PNG.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/pulse"
	"github.com/lingx107/digdar/internal/units"
)

var (
	inPath   = flag.String("in", "", "Pulse stream file to read (default stdin)")
	outPath  = flag.String("out", "pulses.html", "HTML output path")
	pngPath  = flag.String("png", "", "Also save the pulse window as a PNG at this path")
	pulseIdx = flag.Int("pulse", 0, "Index of the pulse to plot")
	maxScan  = flag.Int("max", 0, "Stop after scanning this many pulses (0 = all)")
)

func main() {
	flag.Parse()

	var in io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	br := bufio.NewReader(in)
	hdr, err := pulse.ReadStreamHeader(br)
	if err != nil {
		log.Fatalf("failed to read stream: %v", err)
	}

	var (
		rec      pulse.Record
		selected pulse.Record
		haveSel  bool
		azimuths []opts.ScatterData
		count    int
	)
	for {
		if *maxScan > 0 && count >= *maxScan {
			break
		}
		if err := pulse.ReadRecord(br, &rec); err != nil {
			if err == io.EOF {
				break
			}
			log.Fatalf("failed to read pulse %d: %v", count, err)
		}
		if count == *pulseIdx {
			selected.Meta = rec.Meta
			selected.Samples = append([]adc.Sample(nil), rec.Samples...)
			haveSel = true
		}
		azimuths = append(azimuths, opts.ScatterData{
			Value: []interface{}{count, units.AzimuthDegrees(rec.Meta.Azimuth())},
		})
		count++
	}
	if count == 0 {
		log.Fatal("stream contains no pulses")
	}
	if !haveSel {
		log.Fatalf("pulse %d not found; stream has %d pulses", *pulseIdx, count)
	}

	log.Printf("read %d pulses (decim=%d, ns=%d)", count, hdr.Decim, hdr.NS)

	metersPerSample := units.RangePerSample(hdr.Decim, hdr.TickHz)

	xs := make([]string, len(selected.Samples))
	ys := make([]opts.LineData, len(selected.Samples))
	for i, s := range selected.Samples {
		xs[i] = fmt.Sprintf("%.0f", float64(i)*metersPerSample)
		ys[i] = opts.LineData{Value: int(s)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pulse View", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Pulse %d video window", *pulseIdx),
			Subtitle: fmt.Sprintf("trig=%d azimuth=%.2f° decim=%d ns=%d", selected.Meta.TrigCount, selected.Meta.Azimuth()*360, hdr.Decim, hdr.NS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Range (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Counts"}),
	)
	line.SetXAxis(xs).AddSeries("video", ys)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Azimuth coverage",
			Subtitle: fmt.Sprintf("%d pulses", count),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Pulse"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Azimuth (°)", Min: 0, Max: 360}),
	)
	scatter.AddSeries("azimuth", azimuths, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	page := components.NewPage()
	page.AddCharts(line, scatter)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		log.Fatalf("failed to render charts: %v", err)
	}
	if err := os.WriteFile(*outPath, buf.Bytes(), 0644); err != nil {
		log.Fatalf("failed to write %s: %v", *outPath, err)
	}
	log.Printf("wrote %s", *outPath)

	if *pngPath != "" {
		if err := savePNG(*pngPath, &selected, metersPerSample); err != nil {
			log.Fatalf("failed to save PNG: %v", err)
		}
		log.Printf("wrote %s", *pngPath)
	}
}

// savePNG renders the pulse window as a static line plot.
func savePNG(path string, rec *pulse.Record, metersPerSample float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pulse %d", rec.Meta.TrigCount)
	p.X.Label.Text = "Range (m)"
	p.Y.Label.Text = "Counts"

	pts := make(plotter.XYs, len(rec.Samples))
	for i, s := range rec.Samples {
		pts[i] = plotter.XY{X: float64(i) * metersPerSample, Y: float64(s)}
	}

	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Width = vg.Points(1)
	p.Add(l)

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
