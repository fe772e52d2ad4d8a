// ABOUTME: Entry point for the clipstream progressive audio player
// ABOUTME: Parses CLI flags, wires transport/adapter/engine, and plays a stream
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/clipstream/clipstream-go/internal/version"
	"github.com/clipstream/clipstream-go/pkg/adapter"
	"github.com/clipstream/clipstream-go/pkg/clip"
	"github.com/clipstream/clipstream-go/pkg/engine"
	"github.com/clipstream/clipstream-go/pkg/transport"
)

var (
	streamURL   = flag.String("url", "", "Stream source: http(s)://, ws(s)://, or a local file path")
	volume      = flag.Float64("volume", 1.0, "Playback volume, 0 to 1")
	loop        = flag.Bool("loop", false, "Loop playback")
	bufferOnly  = flag.Bool("buffer-only", false, "Download fully and report duration without playing")
	chunkKB     = flag.Int("chunk-kb", 64, "Target chunk size in KiB")
	logFile     = flag.String("log-file", "", "Log file path (default: stderr only)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}
	if *streamURL == "" {
		fmt.Fprintln(os.Stderr, "usage: clipstream -url <stream>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Set up logging
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	log.Printf("Starting %s %s", version.Product, version.Version)

	eng := engine.NewOto()
	defer func() { _ = eng.Close() }()

	c, err := clip.New(clip.Config{
		URL:             *streamURL,
		Transport:       transportFor(*streamURL),
		Adapter:         adapter.NewMP3(),
		Engine:          eng,
		TargetChunkSize: *chunkKB * 1024,
		Loop:            *loop,
		Volume:          *volume,
	})
	if err != nil {
		log.Fatalf("Failed to create clip: %v", err)
	}
	defer c.Dispose()

	c.On(clip.EventMetadata, func(data interface{}) {
		if m, ok := data.(clip.Metadata); ok {
			log.Printf("Now loading: %s - %s (%s)", m.Artist, m.Title, m.Album)
		}
	})
	c.On(clip.EventCanPlayThrough, func(interface{}) {
		log.Printf("Buffered enough to play through")
	})
	c.On(clip.EventLoad, func(interface{}) {
		if d, ok := c.Duration(); ok {
			log.Printf("Load complete, duration %.1fs", d)
		} else {
			log.Printf("Load complete")
		}
	})
	c.On(clip.EventLoadError, func(data interface{}) {
		log.Printf("Load error: %v", data)
	})
	c.On(clip.EventPlaybackError, func(data interface{}) {
		log.Printf("Playback error: %v", data)
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *bufferOnly {
		select {
		case err := <-c.Buffer(true):
			if err != nil {
				log.Fatalf("Buffering failed: %v", err)
			}
			if d, ok := c.Duration(); ok {
				fmt.Printf("%.3f\n", d)
			}
		case sig := <-sigChan:
			log.Printf("Received signal %v, shutting down", sig)
		}
		return
	}

	done := c.Play()
	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("Playback failed: %v", err)
		}
		log.Printf("Playback finished")
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down", sig)
	}
}

// transportFor picks a transport from the source's scheme. Anything that is
// not an http(s) or ws(s) URL is treated as a local file path.
func transportFor(src string) transport.Transport {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return transport.NewHTTP(src, nil)
	case strings.HasPrefix(src, "ws://"), strings.HasPrefix(src, "wss://"):
		return transport.NewWS(src)
	default:
		return transport.NewFile(src)
	}
}
