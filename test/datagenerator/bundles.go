package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/carenexus/ehrc-app/ehrc/fixture"
)

var (
	bundles, patients int
	outDir            string
)

func init() {
	flag.IntVar(&bundles, "bundles", 5, "number of bundle files to generate")
	flag.IntVar(&patients, "patients", 10, "number of patients per bundle")
	flag.StringVar(&outDir, "out", ".", "directory to write bundle files into")
	flag.Parse()
}

// Generates synthetic collection bundles for a fixture dataset directory.
// Point serve-fixture --dataset at the output to get a populated server.
func main() {
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		panic(err)
	}

	for i := 0; i < bundles; i++ {
		data, err := fixture.SyntheticBundle(patients)
		if err != nil {
			panic(err)
		}

		fn := filepath.Join(outDir, fmt.Sprintf("synthetic_%03d.json", i))
		if err := ioutil.WriteFile(fn, data, 0644); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %s\n", fn)
	}
}
