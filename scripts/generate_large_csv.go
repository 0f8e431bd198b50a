package main

import (
	"compress/gzip"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"
)

// Headers deliberately need sanitizing: spaces, punctuation, mixed case,
// a blank header and a duplicate after normalization.
var headers = []string{
	"Passenger Id",
	"Passenger Class",
	"Name",
	"Age (years)",
	"Fare $",
	"Raw Predicted Score",
	"Survived?",
	"",
	"name",
}

var (
	firstNames = []string{"Owen", "Laina", "William", "James", "Timothy", "Gosta", "Oscar", "Nicholas", "Anna", "Elisabeth"}
	lastNames  = []string{"Braund", "Cumings", "Heikkinen", "Futrelle", "Allen", "Moran", "McCarthy", "Palsson", "Johnson", "Nasser"}
	titles     = []string{"Mr.", "Mrs.", "Miss.", "Master."}
)

func main() {
	var (
		rows       = flag.Int("rows", 1000000, "Number of rows to generate")
		output     = flag.String("output", "large_passengers.csv.gz", "Output file path")
		compress   = flag.Bool("compress", true, "Compress output with gzip")
		tsv        = flag.Bool("tsv", false, "Write tab-separated values")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		batchSize  = flag.Int("batch", 10000, "Batch size for writing (rows per flush)")
		flushEvery = flag.Int("flush-every", 100000, "Print progress every N rows")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	file, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	var dst io.Writer = file
	var gzWriter *gzip.Writer
	if *compress {
		gzWriter = gzip.NewWriter(file)
		defer gzWriter.Close()
		dst = gzWriter
	}
	writer := csv.NewWriter(dst)
	if *tsv {
		writer.Comma = '\t'
	}
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		os.Exit(1)
	}

	batch := make([][]string, 0, *batchSize)
	for i := 0; i < *rows; i++ {
		batch = append(batch, passengerRow(rng, i+1))

		if len(batch) >= *batchSize {
			if err := writer.WriteAll(batch); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing batch: %v\n", err)
				os.Exit(1)
			}
			if gzWriter != nil {
				if err := gzWriter.Flush(); err != nil {
					fmt.Fprintf(os.Stderr, "Error flushing gzip: %v\n", err)
					os.Exit(1)
				}
			}
			batch = batch[:0]
			if (i+1)%*flushEvery == 0 {
				fmt.Fprintf(os.Stderr, "Generated %d rows...\n", i+1)
			}
		}
	}

	if len(batch) > 0 {
		if err := writer.WriteAll(batch); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing final batch: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "Successfully generated %d rows with %d columns in %s\n", *rows, len(headers), *output)
}

func passengerRow(rng *rand.Rand, id int) []string {
	class := 1 + rng.Intn(3)
	name := fmt.Sprintf("%s, %s %s",
		lastNames[rng.Intn(len(lastNames))],
		titles[rng.Intn(len(titles))],
		firstNames[rng.Intn(len(firstNames))])

	// About one age in five is missing.
	age := ""
	if rng.Intn(5) > 0 {
		age = fmt.Sprintf("%d", 1+rng.Intn(80))
	}

	score := rng.Float64()
	survived := "0"
	if score > 0.5 {
		survived = "1"
	}

	return []string{
		fmt.Sprintf("%d", id),
		fmt.Sprintf("%d", class),
		name,
		age,
		fmt.Sprintf("%.4f", 5+rng.Float64()*100*float64(4-class)),
		fmt.Sprintf("%.2f", score),
		survived,
		fmt.Sprintf("note_%d", rng.Intn(100)),
		strings.ToUpper(name[:1]),
	}
}
