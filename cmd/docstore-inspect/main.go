// Command docstore-inspect is a tiny read-only inspector over a docstore
// data file, built the way cuemby-warren's cmd/warren is: a cobra root
// command with independent subcommands sharing a few persistent flags. It
// never opens a file for writing and never becomes part of the library
// proper.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thistonyuncle/docstore/doclog"
	"github.com/thistonyuncle/docstore/fulltext"
	"github.com/thistonyuncle/docstore/geo"
	"github.com/thistonyuncle/docstore/store"
)

var (
	filePath    string
	keystoreArg string
	backendArg  string
)

func main() {
	doclog.SetCallback(func(level doclog.LogLevel, message string) {
		fmt.Fprintf(os.Stderr, "%s %s\n", level, message)
	})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docstore-inspect",
	Short: "Read-only inspector for docstore data files",
	Long: `docstore-inspect opens a docstore data file read-only and lets
you list key stores, fetch or enumerate raw records, and run full-text or
geospatial queries against an already-built index.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&filePath, "file", "", "path to the docstore data file (required)")
	rootCmd.PersistentFlags().StringVar(&keystoreArg, "keystore", "default", "key store name")
	rootCmd.PersistentFlags().StringVar(&backendArg, "backend", "log", "backend: log or sql")
	rootCmd.MarkPersistentFlagRequired("file")

	rootCmd.AddCommand(keystoresCmd, getCmd, enumCmd, fullTextQueryCmd, geoQueryCmd)
}

func backendKind() store.BackendKind {
	if backendArg == "sql" {
		return store.BackendSQL
	}
	return store.BackendLogStructured
}

func openReadOnly() (*store.DataFile, error) {
	return store.Open(filePath, store.Options{Backend: backendKind()})
}

var keystoresCmd = &cobra.Command{
	Use:   "keystores",
	Short: "List the key stores present in the data file",
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := openReadOnly()
		if err != nil {
			return err
		}
		defer df.Close()
		names, err := df.AllKeyStoreNames()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a single record by its raw key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := openReadOnly()
		if err != nil {
			return err
		}
		defer df.Close()
		ks, err := df.KeyStore(keystoreArg, store.Capabilities{Sequences: true})
		if err != nil {
			return err
		}
		rec, err := ks.Get([]byte(args[0]), false)
		if err != nil {
			return err
		}
		return printJSON(recordView(rec))
	},
}

var (
	enumMin, enumMax   string
	enumSkip, enumLimit int
)

var enumCmd = &cobra.Command{
	Use:   "enum",
	Short: "Enumerate records in [--min,--max]",
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := openReadOnly()
		if err != nil {
			return err
		}
		defer df.Close()
		ks, err := df.KeyStore(keystoreArg, store.Capabilities{Sequences: true})
		if err != nil {
			return err
		}
		opts := store.DefaultEnumOptions()
		opts.Skip, opts.Limit = enumSkip, enumLimit
		var min, max []byte
		if enumMin != "" {
			min = []byte(enumMin)
		}
		if enumMax != "" {
			max = []byte(enumMax)
		}
		en, err := ks.Enumerate(min, max, opts)
		if err != nil {
			return err
		}
		var out []interface{}
		for en.Next() {
			out = append(out, recordView(en.Record()))
		}
		return printJSON(out)
	},
}

func init() {
	enumCmd.Flags().StringVar(&enumMin, "min", "", "inclusive lower bound key")
	enumCmd.Flags().StringVar(&enumMax, "max", "", "inclusive upper bound key")
	enumCmd.Flags().IntVar(&enumSkip, "skip", 0, "records to skip")
	enumCmd.Flags().IntVar(&enumLimit, "limit", 0, "max records to return (0 = unlimited)")
}

var (
	ftRanked   bool
	ftStemmer  string
)

var fullTextQueryCmd = &cobra.Command{
	Use:   "fulltext-query <query>",
	Short: "Run a full-text query against an existing full-text index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := openReadOnly()
		if err != nil {
			return err
		}
		defer df.Close()
		ks, err := df.KeyStore(keystoreArg, store.Capabilities{Sequences: true})
		if err != nil {
			return err
		}
		fi := fulltext.Open(ks, fulltext.NewTokenizer(ftStemmer, false))
		results, err := fi.Query(args[0], ftRanked)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	fullTextQueryCmd.Flags().BoolVar(&ftRanked, "ranked", false, "rank results by term rarity")
	fullTextQueryCmd.Flags().StringVar(&ftStemmer, "stemmer", "english", "stemmer name, or \"\" for none")
}

var (
	geoLatMin, geoLatMax, geoLonMin, geoLonMax float64
	geoMaxCount                                int
)

var geoQueryCmd = &cobra.Command{
	Use:   "geo-query",
	Short: "Run a bounding-box query against an existing geospatial index",
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := openReadOnly()
		if err != nil {
			return err
		}
		defer df.Close()
		ks, err := df.KeyStore(keystoreArg, store.Capabilities{Sequences: true})
		if err != nil {
			return err
		}
		gi := geo.Open(ks)
		area := geo.Area{
			Lat: geo.Range{Min: geoLatMin, Max: geoLatMax},
			Lon: geo.Range{Min: geoLonMin, Max: geoLonMax},
		}
		results, err := gi.Query(area, geoMaxCount)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	geoQueryCmd.Flags().Float64Var(&geoLatMin, "lat-min", -90, "minimum latitude")
	geoQueryCmd.Flags().Float64Var(&geoLatMax, "lat-max", 90, "maximum latitude")
	geoQueryCmd.Flags().Float64Var(&geoLonMin, "lon-min", -180, "minimum longitude")
	geoQueryCmd.Flags().Float64Var(&geoLonMax, "lon-max", 180, "maximum longitude")
	geoQueryCmd.Flags().IntVar(&geoMaxCount, "max-count", 50, "max covering hash ranges")
}

func recordView(rec store.Record) map[string]interface{} {
	return map[string]interface{}{
		"key":      string(rec.Key),
		"exists":   rec.Exists,
		"deleted":  rec.Deleted,
		"sequence": rec.Sequence,
		"body":     string(rec.Body),
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
