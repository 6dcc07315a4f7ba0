// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Command rfedge is the development-host driver for the embedded random
forest engine: build, train, predict, feedback, flush, and metrics, each
a subcommand operating on one model directory.
*/
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/rfengine"
)

var usage = func() {
	cmd := os.Args[0]
	fmt.Fprintf(os.Stderr, "Usage of %s:\n"+
		"  %s build   -root dir -model name\n"+
		"  %s train   -root dir -model name [-epochs n]\n"+
		"  %s predict -root dir -model name feature...\n"+
		"  %s feedback -root dir -model name label\n"+
		"  %s flush   -root dir -model name\n"+
		"  %s metrics -root dir -model name\n",
		cmd, cmd, cmd, cmd, cmd, cmd, cmd)
}

func trace(s string) (string, time.Time) {
	fmt.Println("[START]", s)
	return s, time.Now()
}

func un(s string, startTime time.Time) {
	fmt.Println("[END]", s, "with elapsed time", time.Since(startTime))
}

// linearQuantizer is a stand-in for the quantisation algorithm the
// embedded engine ships separately (spec section 1, `Rf_quantizer` is
// out of scope): it clamps each raw value into [0, 2^q-1] by a fixed
// scale, giving the CLI something concrete to drive Predict with.
func linearQuantizer(q uint, scale float64) rfengine.Quantizer {
	maxVal := float64(int(1)<<q - 1)
	return func(features []float64) ([]uint8, error) {
		out := make([]uint8, len(features))
		for i, v := range features {
			scaled := v * scale
			if scaled < 0 {
				scaled = 0
			}
			if scaled > maxVal {
				scaled = maxVal
			}
			out[i] = uint8(math.Round(scaled))
		}
		return out, nil
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	root := fs.String("root", ".", "model root directory")
	model := fs.String("model", "", "model name")
	epochs := fs.Int("epochs", 1, "number of grid-search epochs (train only)")
	quantBits := fs.Uint("qbits", 4, "quantisation coefficient used by the CLI's stand-in quantizer")
	quantScale := fs.Float64("qscale", 1, "scale factor applied before quantising a raw feature")
	fs.Parse(os.Args[2:])

	if *model == "" {
		usage()
		os.Exit(1)
	}

	defer un(trace("rfedge " + sub))

	e, err := rfengine.New(platform.NewPosix(), *root, *model, linearQuantizer(*quantBits, *quantScale))
	if err != nil {
		glog.Exitf("rfedge: %s: %v", sub, err)
	}

	switch sub {
	case "build":
		runBuild(e)
	case "train":
		runTrain(e, *epochs)
	case "predict":
		runPredict(e, fs.Args())
	case "feedback":
		runFeedback(e, fs.Args())
	case "flush":
		runFlush(e)
	case "metrics":
		runMetrics(e)
	default:
		usage()
		os.Exit(1)
	}
}

func runBuild(e *rfengine.Engine) {
	if err := e.BuildModel(); err != nil {
		glog.Exitf("rfedge: build: %v", err)
	}
	fmt.Printf("built %d trees, %d nodes, score=%.4f\n", e.TreeCount(), e.NodeCount(), e.Config.ResultScore)
}

func runTrain(e *rfengine.Engine, epochs int) {
	if err := e.Training(epochs); err != nil {
		glog.Exitf("rfedge: train: %v", err)
	}
	fmt.Printf("trained %d trees, %d nodes, score=%.4f\n", e.TreeCount(), e.NodeCount(), e.Config.ResultScore)
}

func runPredict(e *rfengine.Engine, args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	features := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			glog.Exitf("rfedge: predict: feature %q: %v", a, err)
		}
		features[i] = v
	}

	result := e.Predict(features)
	if !result.Success {
		glog.Exitf("rfedge: predict: inference failed")
	}
	fmt.Printf("label=%s id=%d latency_us=%d\n", result.LabelText, result.LabelID, result.LatencyUs)
}

func runFeedback(e *rfengine.Engine, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	if err := e.AddActualLabel(strings.TrimSpace(args[0])); err != nil {
		glog.Exitf("rfedge: feedback: %v", err)
	}
}

func runFlush(e *rfengine.Engine) {
	if err := e.FlushPendingData(); err != nil {
		glog.Exitf("rfedge: flush: %v", err)
	}
	fmt.Println("flushed pending feedback into the base dataset")
}

func runMetrics(e *rfengine.Engine) {
	m := e.Metrics()
	fmt.Printf("accuracy=%.4f ram_low_water=%d trees=%d nodes=%d\n",
		m.Accuracy(), e.RAMLowWaterBytes(), e.TreeCount(), e.NodeCount())
}
