// Command fortress hashes a file or a string through the self-healing
// accumulator and prints the digest as hex.
//
// Usage:
//
//	fortress [flags] file <path>
//	fortress [flags] string <text...>
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fortresskit/fortress/internal/archive"
	"github.com/fortresskit/fortress/internal/config"
	digeststore "github.com/fortresskit/fortress/internal/digestStore"
	"github.com/fortresskit/fortress/pkg/ingest"
	"github.com/fortresskit/fortress/pkg/logging"
	"github.com/fortresskit/fortress/pkg/selfheal"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
)

func main() {
	configPath := flag.String("config", "", "yaml config file")
	digestBytes := flag.Int("digest", 0, "digest length in bytes (overrides config)")
	storePath := flag.String("store", "", "record the digest in a badger store at this path")
	exportPath := flag.String("export", "", "write the snapshot history to this file")
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		conf, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fortress: %v\n", err)
			os.Exit(1)
		}
	}
	if *digestBytes > 0 {
		conf.DigestBytes = *digestBytes
	}
	if *storePath != "" {
		conf.StorePath = *storePath
	}
	log := logging.New(logging.ParseLevel(conf.LogLevel), false)

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [flags] file <path>\n  %s [flags] string <text>\n",
			os.Args[0], os.Args[0])
		os.Exit(1)
	}

	state := sponge.New()
	heal, err := selfheal.Init(snapshot.NewAuthenticator(), state, log)
	if err != nil {
		log.Error("init self-heal context", "error", err)
		os.Exit(1)
	}

	mode, source := args[0], ""
	switch mode {
	case "file":
		source = args[1]
		n, err := ingestFile(state, source, conf.ChunkSize)
		if err != nil {
			log.Error("process file", "path", source, "error", err)
			os.Exit(1)
		}
		log.Info("processed file", "path", source, "bytes", n)
	case "string":
		source = strings.Join(args[1:], " ")
		ingest.String(state, source)
		log.Info("processed string", "bytes", len(source))
	default:
		log.Error("unknown mode", "mode", mode)
		os.Exit(1)
	}

	// Snapshot the ingested state, then run one detect/recover pass before
	// trusting the digest.
	if err := heal.Save(state); err != nil {
		log.Error("snapshot state", "error", err)
		os.Exit(1)
	}
	if heal.Detect(state) {
		log.Warn("anomaly detected, attempting recovery")
		if !heal.Recover(state) {
			log.Warn("recovery degraded to re-initialization, input lost")
		}
	}

	digest := state.Squeeze(conf.DigestBytes)
	fmt.Println(hex.EncodeToString(digest))

	if conf.StorePath != "" {
		recordDigest(log, conf, source, digest, state.AbsorbedBytes)
	}
	if *exportPath != "" {
		exportHistory(log, *exportPath, heal)
	}
}

func ingestFile(state *sponge.State, path string, chunkSize int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ingest.ReaderSize(state, f, chunkSize)
}

func recordDigest(log *slog.Logger, conf config.Config, source string, digest []byte, length uint64) {
	store, err := digeststore.New(digeststore.StoreConfig{Path: conf.StorePath})
	if err != nil {
		log.Error("open digest store", "error", err)
		return
	}
	defer store.Close()

	err = store.Put(digeststore.Record{
		Source: source,
		Digest: digest,
		Length: length,
	})
	if err != nil {
		log.Error("record digest", "error", err)
	}
}

func exportHistory(log *slog.Logger, path string, heal *selfheal.Context) {
	f, err := os.Create(path)
	if err != nil {
		log.Error("create archive file", "error", err)
		return
	}
	defer f.Close()

	if err := archive.Export(f, heal.Ring, heal.Shadow); err != nil {
		log.Error("export snapshot history", "error", err)
	}
}
