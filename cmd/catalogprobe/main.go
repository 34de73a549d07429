// Command catalogprobe inspects a sample catalog XML file and prints either a
// report of every element path under the record tag or a starter mapping
// table for catalogindex. It is tolerant to truncated inputs, so the head of
// a large export is enough.
//
// Example usage:
//
//	# Discover all relative paths under the record tag and print a report.
//	catalogprobe -i products_0001.xml -discover -pretty > report.json
//
//	# Guess the record tag, then generate a starter mapping.
//	catalogprobe -i products_0001.xml -generate-mapping > mapping.yaml
//	catalogindex --source_dir /data --mapping mapping.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"catalogindex/internal/inspect"
	"catalogindex/internal/mapping"
)

func main() {
	var (
		inputPath = flag.String("i", "", "input XML file path")
		recordTag = flag.String("record_tag", "", "record element name; guessed from the file when empty")
		limit     = flag.Int64("bytes", 0, "only read the first N bytes (0 = whole file)")

		discover    = flag.Bool("discover", false, "print a JSON report of all relative paths/attrs under the record tag")
		generateMap = flag.Bool("generate-mapping", false, "print a starter YAML mapping inferred from discovery")

		pretty = flag.Bool("pretty", false, "pretty-print JSON output")
	)
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing -i")
	}
	if *discover == *generateMap {
		log.Fatal("choose exactly one of -discover or -generate-mapping")
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	rep, err := probe(f, *recordTag, *limit)
	if err != nil {
		log.Fatalf("probe: %v", err)
	}
	log.Printf("probe: record_tag=%s records=%d paths=%d", rep.RecordTag, rep.TotalRecords, len(rep.Paths))

	if *discover {
		err = writeReport(os.Stdout, rep, *pretty)
	} else {
		err = writeMapping(os.Stdout, inspect.StarterMapping(rep))
	}
	if err != nil {
		log.Fatalf("write: %v", err)
	}
}

// probe runs discovery over r, guessing the record tag first when tag is
// empty.
func probe(r io.ReadSeeker, tag string, limit int64) (inspect.Report, error) {
	src := func() (io.Reader, error) {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek: %w", err)
		}
		if limit > 0 {
			return io.LimitReader(r, limit), nil
		}
		return r, nil
	}

	tag = strings.TrimSpace(tag)
	if tag == "" {
		in, err := src()
		if err != nil {
			return inspect.Report{}, err
		}
		if tag, err = inspect.GuessRecordTag(in); err != nil {
			return inspect.Report{}, fmt.Errorf("could not determine record_tag; provide -record_tag: %w", err)
		}
	}
	in, err := src()
	if err != nil {
		return inspect.Report{}, err
	}
	return inspect.Discover(in, tag)
}

func writeReport(w io.Writer, rep inspect.Report, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

// writeMapping writes t in the layout mapping.Load reads.
func writeMapping(w io.Writer, t mapping.Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Entries mapping.Table `yaml:"entries"`
	}{t}); err != nil {
		return err
	}
	return enc.Close()
}
