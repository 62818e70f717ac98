// Command ibf builds and queries interleaved bloom filter indices.
// Each input FASTA file becomes one bin; queries report, per read, the
// bins whose k-mer count meets the threshold.
package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"ibfgo/internal/util"
	"ibfgo/pkg/ibf"
)

var (
	flagKmer      uint64
	flagHash      uint64
	flagBits      uint64
	flagBins      uint64
	flagOut       string
	flagIndex     string
	flagThreads   int
	flagThreshold uint16
	flagCounts    bool
	flagFrozen    bool
	flagVerbose   bool
)

type fastaRecord struct {
	name string
	seq  []byte
}

func readFasta(path string) ([]fastaRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []fastaRecord
	var cur *fastaRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			name := strings.TrimSpace(line[1:])
			if fields := strings.Fields(name); len(fields) > 0 {
				name = fields[0]
			}
			records = append(records, fastaRecord{name: name})
			cur = &records[len(records)-1]
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("%s: sequence data before first header", path)
		}
		cur.seq = append(cur.seq, line...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	bins := flagBins
	if bins == 0 {
		bins = uint64(len(args))
	}
	filter, err := ibf.New(bins, flagHash, flagKmer, flagBits)
	if err != nil {
		return err
	}
	util.Log(flagVerbose, "building %d bins, k=%d, %d hash functions, %d bits",
		bins, flagKmer, flagHash, flagBits)

	records := make(chan ibf.Record)
	done := make(chan error, 1)
	go func() { done <- filter.InsertFrom(records, flagThreads) }()

	bar := pb.StartNew(len(args))
	for binNo, path := range args {
		seqs, err := readFasta(path)
		if err != nil {
			close(records)
			<-done
			return err
		}
		for _, rec := range seqs {
			records <- ibf.Record{Bin: uint64(binNo), Text: rec.seq}
		}
		bar.Increment()
	}
	close(records)
	if err := <-done; err != nil {
		return err
	}
	bar.Finish()

	return filter.SaveToFile(flagOut)
}

func runQuery(cmd *cobra.Command, args []string) error {
	var (
		filter *ibf.Filter
		err    error
	)
	if flagFrozen {
		filter, err = ibf.LoadCompressedFromFile(flagIndex)
	} else {
		filter, err = ibf.LoadFromFile(flagIndex)
	}
	if err != nil {
		return err
	}
	util.Log(flagVerbose, "loaded %s: %d bins, k=%d",
		flagIndex, filter.NoOfBins(), filter.KmerSize())

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, path := range args {
		seqs, err := readFasta(path)
		if err != nil {
			return err
		}
		for _, rec := range seqs {
			if flagCounts {
				fmt.Fprintf(out, "%s\t%v\n", rec.name, filter.Count(rec.seq))
				continue
			}
			var hits []string
			for binNo, ok := range filter.Select(rec.seq, flagThreshold) {
				if ok {
					hits = append(hits, fmt.Sprint(binNo))
				}
			}
			fmt.Fprintf(out, "%s\t%s\n", rec.name, strings.Join(hits, ","))
		}
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	p, err := ibf.ReadMetadata(flagIndex)
	if err != nil {
		return err
	}
	fmt.Printf("bins:       %d\n", p.NoOfBins)
	fmt.Printf("hash funcs: %d\n", p.NoOfHashFuncs)
	fmt.Printf("kmer size:  %d\n", p.KmerSize)
	fmt.Printf("bits:       %d\n", p.NoOfBits)
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "ibf",
		Short:         "Interleaved bloom filter indexing for binned sequence sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	build := &cobra.Command{
		Use:   "build [flags] ref0.fasta ref1.fasta ...",
		Short: "Build an index; each input file becomes one bin",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBuild,
	}
	build.Flags().Uint64Var(&flagKmer, "kmer", 20, "k-mer size")
	build.Flags().Uint64Var(&flagHash, "hash", 3, "number of hash functions")
	build.Flags().Uint64Var(&flagBits, "bits", 1<<26, "bit vector size")
	build.Flags().Uint64Var(&flagBins, "bins", 0, "bin count (default: one per input file)")
	build.Flags().IntVar(&flagThreads, "threads", runtime.NumCPU(), "insertion workers")
	build.Flags().StringVarP(&flagOut, "out", "o", "index.ibf", "output path")

	query := &cobra.Command{
		Use:   "query [flags] reads.fasta ...",
		Short: "Report matching bins per read",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	query.Flags().StringVarP(&flagIndex, "index", "i", "index.ibf", "index path")
	query.Flags().Uint16VarP(&flagThreshold, "threshold", "t", 1, "minimal k-mer count per bin")
	query.Flags().BoolVar(&flagCounts, "counts", false, "print raw counts instead of bins")
	query.Flags().BoolVar(&flagFrozen, "compressed", false, "load with the query-only backing")

	info := &cobra.Command{
		Use:   "info",
		Short: "Decode an index file's metadata",
		RunE:  runInfo,
	}
	info.Flags().StringVarP(&flagIndex, "index", "i", "index.ibf", "index path")

	root.AddCommand(build, query, info)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
