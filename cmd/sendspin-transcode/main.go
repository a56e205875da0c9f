// ABOUTME: Entry point for the sendspin-transcode server
// ABOUTME: Loads config and flags, builds playlist and encoder, then serves or writes the stream
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-transcode/internal/config"
	"github.com/Sendspin/sendspin-transcode/internal/discovery"
	"github.com/Sendspin/sendspin-transcode/internal/metrics"
	"github.com/Sendspin/sendspin-transcode/internal/server"
	"github.com/Sendspin/sendspin-transcode/internal/version"
	"github.com/Sendspin/sendspin-transcode/pkg/playlist"
	"github.com/Sendspin/sendspin-transcode/pkg/transcode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "Config file (.yaml, .yml or .toml)")
	port       = flag.Int("port", 8927, "HTTP and websocket port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-transcode)")
	format     = flag.String("format", "", "Container format: raw, wav or ogg")
	codec      = flag.String("codec", "", "Codec, e.g. opus or pcm_s16le (default: container default)")
	mimeType   = flag.String("mime", "", "Container MIME type hint")
	sampleRate = flag.Int("sample-rate", 0, "Requested sample rate")
	sampleFmt  = flag.String("sample-fmt", "", "Requested sample format, e.g. s16, s24, flt")
	layout     = flag.String("layout", "", "Requested channel layout, e.g. mono, stereo, 5.1")
	bitRate    = flag.Int("bitrate", 0, "Codec bit rate in bits per second (0 = codec default)")
	outFile    = flag.String("out", "", "Write one segment of the encoded stream to this file instead of serving")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI     = flag.Bool("tui", false, "Show the status TUI")
	control    = flag.Bool("control", false, "Accept playlist commands from websocket listeners")
	discover   = flag.Bool("discover", false, "List transcoding servers on the network and exit")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	logFile    = flag.String("log-file", "", "Log file path (default from config)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [file|url|tone:<seconds>]...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	// Log to the file and, unless the TUI owns the terminal, to stdout
	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if cfg.Server.TUI && *outFile == "" {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if *discover {
		if err := listServers(); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = *port
		case "name":
			cfg.Server.Name = *name
		case "no-mdns":
			cfg.Server.MDNS = !*noMDNS
		case "tui":
			cfg.Server.TUI = *useTUI
		case "format":
			cfg.Encoder.Format = *format
		case "codec":
			cfg.Encoder.Codec = *codec
		case "mime":
			cfg.Encoder.MimeType = *mimeType
		case "sample-rate":
			cfg.Encoder.SampleRate = *sampleRate
		case "sample-fmt":
			cfg.Encoder.SampleFormat = *sampleFmt
		case "layout":
			cfg.Encoder.Layout = *layout
		case "bitrate":
			cfg.Encoder.BitRate = *bitRate
		case "debug":
			cfg.Logging.Debug = *debug
		case "log-file":
			cfg.Logging.File = *logFile
		}
	})

	if cfg.Server.Name == config.Default().Server.Name && !isSet("name") {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = fmt.Sprintf("%s-transcode", hostname)
	}
	cfg.Playlist.Items = append(cfg.Playlist.Items, flag.Args()...)
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

func run(cfg *config.Config) error {
	log.Printf("Starting %s %s: %s", version.Product, version.Version, cfg.Server.Name)
	if cfg.Logging.Debug {
		log.Printf("Debug logging enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	toFile := *outFile != ""
	pl := playlist.New(playlist.Config{
		// A file is written as fast as it can be encoded
		Realtime:    cfg.Playlist.Realtime && !toFile,
		Lead:        cfg.Playlist.Lead(),
		ChunkFrames: cfg.Playlist.ChunkFrames,
	})
	defer pl.Close()

	items := cfg.Playlist.Items
	if len(items) == 0 {
		if toFile {
			items = []string{"tone:10"}
		} else {
			items = []string{"tone:"}
		}
	}
	for _, item := range items {
		if _, err := pl.Add(item); err != nil {
			log.Printf("Skipping %s: %v", item, err)
		}
	}

	target, err := cfg.Encoder.TargetFormat()
	if err != nil {
		return err
	}
	filename := cfg.Encoder.Filename
	if filename == "" {
		filename = *outFile
	}

	enc := transcode.New(transcode.Config{
		TargetFormat: target,
		BitRate:      cfg.Encoder.BitRate,
		FormatName:   cfg.Encoder.Format,
		CodecName:    cfg.Encoder.Codec,
		Filename:     filename,
		MimeType:     cfg.Encoder.MimeType,
		Metrics:      m,
		Debug:        cfg.Logging.Debug,
	})
	if err := enc.Attach(pl); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	defer enc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received %v signal, shutting down gracefully...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if toFile {
		g.Go(func() error {
			defer cancel()
			return writeFile(*outFile, enc)
		})
	} else {
		srv := server.New(server.Config{
			Port:         cfg.Server.Port,
			Name:         cfg.Server.Name,
			EnableMDNS:   cfg.Server.MDNS,
			Debug:        cfg.Logging.Debug,
			UseTUI:       cfg.Server.TUI,
			AllowControl: *control,
			BitRate:      cfg.Encoder.BitRate,
		}, enc, pl, m, reg)
		log.Printf("Press Ctrl-C to stop")

		g.Go(func() error {
			defer cancel()
			return srv.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// Unblocks anything waiting on encoder output
		return enc.Detach()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("Stopped")
	return nil
}

// listServers browses mDNS for a few seconds and prints what it finds
func listServers() error {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- mgr.Browse(3 * time.Second)
	}()

	found := 0
	for srv := range mgr.Servers() {
		found++
		fmt.Printf("%s\thttp://%s:%d/stream\t%v\n", srv.Name, srv.Host, srv.Port, srv.Info)
	}
	if found == 0 {
		fmt.Println("No servers found")
	}
	return <-errChan
}
